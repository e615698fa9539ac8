package decision

import "errors"

var (
	// ErrDuplicateTechnique 名称或标识重复
	ErrDuplicateTechnique = errors.New("decision: duplicate technique")

	// ErrInvalidTechnique 技术元数据无效
	ErrInvalidTechnique = errors.New("decision: invalid technique")
)
