package state

var (
	sequencePrefix    = []byte("seq/")
	vaultPrefix       = []byte("receivable/vault/")
	vaultListKey      = []byte("receivable/vaults")
	cyclePrefix       = []byte("receivable/cycle/")
	salePrefix        = []byte("receivable/sale/")
	saleListPrefix    = []byte("receivable/sales/")
	redemptionPrefix  = []byte("receivable/redemption/")
	redemptionListKey = []byte("receivable/redemptions/")
	poolPrefix        = []byte("amm/pool/")
	poolListKey       = []byte("amm/pools")
	positionPrefix    = []byte("amm/position/")
	positionListKey   = []byte("amm/positions/")
	balancePrefix     = []byte("bank/balance/")
	supplyPrefix      = []byte("bank/supply/")
)
