package models

// GenerationDepth is the number of downline levels in a generation report
const GenerationDepth = 10

// GenerationMember is a user listed inside a generation level
type GenerationMember struct {
	UserID        uint   `json:"userId"`
	FullName      string `json:"fullName"`
	WalletAddress string `json:"walletAddress"`
}

// GenerationLevel summarises one level of a user's downline
type GenerationLevel struct {
	Level    int                `json:"level"`
	Count    int                `json:"count"`
	Active   int                `json:"active"`
	Inactive int                `json:"inactive"`
	Users    []GenerationMember `json:"users"`
}
