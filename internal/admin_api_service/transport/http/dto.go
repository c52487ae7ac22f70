package http

// AddDenylistRequestDTO carries tokens for token categories or a payload
// (base64 in JSON) for file and mhash.
type AddDenylistRequestDTO struct {
	Items   []string `json:"items" validate:"required_without=Payload,dive,required"`
	Payload []byte   `json:"payload" validate:"required_without=Items"`
}

type RetireDenylistRequestDTO struct {
	Items []string `json:"items" validate:"required,min=1,dive,required"`
}

type GlobalBanRequestDTO struct {
	UserID  int64  `json:"user_id" validate:"required,gt=0"`
	Reason  string `json:"reason" validate:"max=512"`
	Message string `json:"message" validate:"max=4096"`
}

type SetTagRequestDTO struct {
	Value string `json:"value" validate:"required,max=256"`
}

type CountResponseDTO struct {
	Reason string `json:"reason,omitempty"`
	Count  int64  `json:"count"`
}

type UnbanResponseDTO struct {
	UserID  int64 `json:"user_id"`
	Removed bool  `json:"removed"`
}

type ErrorResponseDTO struct {
	Error string `json:"error"`
}
