package models

type PaginationMeta struct {
	Skip     int  `json:"skip"`
	Limit    int  `json:"limit"`
	Returned int  `json:"returned"`
	HasMore  bool `json:"hasMore"`
}
