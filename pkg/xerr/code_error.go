package xerr

import "fmt"

// CodeError 自定义错误结构
type CodeError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error 实现 error 接口
func (e *CodeError) Error() string {
	return fmt.Sprintf("Code: %d, Message: %s", e.Code, e.Message)
}

// New 创建新的 CodeError
func New(code int, msg string) *CodeError {
	return &CodeError{Code: code, Message: msg}
}

// 常用通用错误码
const (
	OK                  = 200
	BadRequest          = 400
	NotFound            = 404
	InternalServerError = 500

	// 协作方错误码
	EmbeddingError      = 502
	StoreUnavailable    = 503
	AgentExecutionError = 520
)

// 常用预定义错误
var (
	ErrSuccess     = New(OK, "Success")
	ErrServerError = New(InternalServerError, "internal error")
	ErrParam       = New(BadRequest, "invalid parameter")

	// ErrInvalidInput 空问题或仅空白字符的问题
	ErrInvalidInput = New(BadRequest, "question is empty")
	// ErrEmbedding 向量化协作方不可用或返回非法向量
	ErrEmbedding = New(EmbeddingError, "embedding provider failed")
	// ErrStoreUnavailable 向量库不可达
	ErrStoreUnavailable = New(StoreUnavailable, "vector store unavailable")
	// ErrAgentExecution SQL agent 未产出可用结果
	ErrAgentExecution = New(AgentExecutionError, "sql agent failed")
)
