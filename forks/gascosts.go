package forks

// GasCosts holds the gas cost constants of a fork. Values not redefined by a
// fork are inherited from the parent fork's table.
type GasCosts struct {
	Jumpdest                             uint64
	Base                                 uint64
	VeryLow                              uint64
	Low                                  uint64
	Mid                                  uint64
	High                                 uint64
	WarmAccountAccess                    uint64
	ColdAccountAccess                    uint64
	AccessListAddress                    uint64
	AccessListStorage                    uint64
	WarmSload                            uint64
	ColdSload                            uint64
	StorageSet                           uint64
	StorageReset                         uint64
	StorageClearRefund                   uint64
	SelfDestruct                         uint64
	Create                               uint64
	CodeDepositByte                      uint64
	InitcodeWord                         uint64
	CallValue                            uint64
	CallStipend                          uint64
	NewAccount                           uint64
	Exp                                  uint64
	ExpByte                              uint64
	Memory                               uint64
	TxDataZero                           uint64
	TxDataNonZero                        uint64
	TxDataStandardTokenCost              uint64
	TxDataFloorTokenCost                 uint64
	Transaction                          uint64
	TransactionCreate                    uint64
	Log                                  uint64
	LogData                              uint64
	LogTopic                             uint64
	Keccak256                            uint64
	Keccak256Word                        uint64
	Copy                                 uint64
	Blockhash                            uint64
	Authorization                        uint64
	AuthorizationExistingAuthorityRefund uint64
}

// frontierGasCosts is the base table all later forks derive from.
var frontierGasCosts = GasCosts{
	Jumpdest:           1,
	Base:               2,
	VeryLow:            3,
	Low:                5,
	Mid:                8,
	High:               10,
	WarmAccountAccess:  100,
	ColdAccountAccess:  2600,
	AccessListAddress:  2400,
	AccessListStorage:  1900,
	WarmSload:          100,
	ColdSload:          2100,
	StorageSet:         20000,
	StorageReset:       2900,
	StorageClearRefund: 4800,
	SelfDestruct:       5000,
	Create:             32000,
	CodeDepositByte:    200,
	InitcodeWord:       2,
	CallValue:          9000,
	CallStipend:        2300,
	NewAccount:         25000,
	Exp:                10,
	ExpByte:            50,
	Memory:             3,
	TxDataZero:         4,
	TxDataNonZero:      68,
	Transaction:        21000,
	TransactionCreate:  32000,
	Log:                375,
	LogData:            8,
	LogTopic:           375,
	Keccak256:          30,
	Keccak256Word:      6,
	Copy:               3,
	Blockhash:          20,
}
