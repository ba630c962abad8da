package request

// QueryRequest 自然语言问答请求
type QueryRequest struct {
	Question string `json:"question" binding:"required"`
	KDocs    int    `json:"k_docs,omitempty"`    // 文档召回 Top-K（可选，默认用配置值）
	KHistory int    `json:"k_history,omitempty"` // 历史召回 Top-K（可选，默认用配置值）
}

// SuggestionsRequest 历史问题补全请求
type SuggestionsRequest struct {
	Q string `form:"q" json:"q"` // 用户输入的部分问题
}
