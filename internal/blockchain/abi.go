package blockchain

// registrationABI is the subset of the registration contract read by the service.
// getUserInfo returns the on-chain user tuple flattened; index 6 holds the display name.
const registrationABI = `[
	{"inputs":[{"internalType":"address","name":"user","type":"address"}],"name":"getUserInfo","outputs":[
		{"internalType":"uint256","name":"id","type":"uint256"},
		{"internalType":"uint256","name":"referrerId","type":"uint256"},
		{"internalType":"address","name":"referrer","type":"address"},
		{"internalType":"uint256","name":"partnersCount","type":"uint256"},
		{"internalType":"uint256","name":"teamCount","type":"uint256"},
		{"internalType":"uint256","name":"registeredAt","type":"uint256"},
		{"internalType":"string","name":"name","type":"string"}
	],"stateMutability":"view","type":"function"},
	{"inputs":[{"internalType":"uint256","name":"userId","type":"uint256"}],"name":"getUserByUserId","outputs":[
		{"internalType":"address","name":"wallet","type":"address"}
	],"stateMutability":"view","type":"function"}
]`

// bookingABI is the subset of the booking (matrix) contract read by the service
const bookingABI = `[
	{"inputs":[{"internalType":"address","name":"user","type":"address"}],"name":"getUserIncome","outputs":[
		{"internalType":"uint256","name":"total","type":"uint256"},
		{"internalType":"uint256","name":"levelIncome","type":"uint256"},
		{"internalType":"uint256","name":"directIncome","type":"uint256"},
		{"internalType":"uint256","name":"slotIncome","type":"uint256"},
		{"internalType":"uint256","name":"recycleIncome","type":"uint256"},
		{"internalType":"uint256","name":"salaryIncome","type":"uint256"}
	],"stateMutability":"view","type":"function"},
	{"inputs":[{"internalType":"address","name":"user","type":"address"}],"name":"getUserActiveSlots","outputs":[
		{"internalType":"uint256[]","name":"slots","type":"uint256[]"}
	],"stateMutability":"view","type":"function"}
]`

const (
	methodGetUserInfo     = "getUserInfo"
	methodGetUserByUserID = "getUserByUserId"
	methodGetUserIncome   = "getUserIncome"
	methodGetActiveSlots  = "getUserActiveSlots"
)
