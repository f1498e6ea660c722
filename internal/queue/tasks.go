package queue

const (
	TypeDocumentIndex = "document:index"
	TypeOTPDeliver    = "otp:deliver"
)

type DocumentIndexPayload struct {
	DocumentID string `json:"document_id"`
	ChatID     string `json:"chat_id"`
}

type OTPDeliverPayload struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
}
