package collector

// RawSource NewsAPI 条目中嵌套的来源对象
type RawSource struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RawArticle NewsAPI 返回的单条原始数据，字段为 null 时解码为空串
type RawArticle struct {
	Source      RawSource `json:"source"`
	Author      string    `json:"author"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	URLToImage  string    `json:"urlToImage"`
	PublishedAt string    `json:"publishedAt"`
	Content     string    `json:"content"`
}
