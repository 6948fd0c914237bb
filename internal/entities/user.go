package entities

// Operator is the single admin identity allowed to read the pairing QR code.
type Operator struct {
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	Role         string `json:"role"`
}
