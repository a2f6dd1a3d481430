package network

// Inbound message ids (participant -> server).
const (
	MsgTypeHeartbeat    = 1
	MsgTypeJoin         = 101
	MsgTypeLeave        = 102
	MsgTypeSendQubit    = 201
	MsgTypeEveSkip      = 202
	MsgTypeEveMeasure   = 203
	MsgTypeBobMeasure   = 204
	MsgTypeNextRound    = 205
	MsgTypeResetGame    = 206
	MsgTypeUpdatePlayer = 210
	MsgTypeSetAliceBit  = 211
	MsgTypeSetBasisFlip = 212
)

// Outbound message ids (server -> participant).
const (
	MsgTypeGameState    = 301
	MsgTypeRoleAssigned = 302
	MsgTypeError        = 303
)

// JoinRequest asks for a role.
type JoinRequest struct {
	Role string `json:"role"`
}

// PlayerData holds the optional fields of an updatePlayer intent.
type PlayerData struct {
	Bit       *int  `json:"bit,omitempty"`
	BasisFlip *bool `json:"basis_flip,omitempty"`
}

// UpdatePlayerRequest names the slot to update and the fields to merge.
type UpdatePlayerRequest struct {
	Role string     `json:"role"`
	Data PlayerData `json:"data"`
}

type SetAliceBitRequest struct {
	Bit int `json:"bit"`
}

type SetBasisFlipRequest struct {
	BasisFlip bool `json:"basis_flip"`
}

type RoleAssigned struct {
	Role string `json:"role"`
}

type ErrorMessage struct {
	Message string `json:"message"`
}
