package dto

// ErrorResponse — стандартный ответ с ошибкой.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// UploadResponse — результат загрузки вложения.
type UploadResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}
