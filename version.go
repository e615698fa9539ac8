package natt

// Version 当前版本
const Version = "v0.1.0"
