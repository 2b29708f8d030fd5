package state

import "encoding/binary"

var (
	marketplaceKey  = []byte("market/state")
	datasetPrefix   = []byte("market/dataset/")
	tokenPrefix     = []byte("market/token/")
	stakePrefix     = []byte("market/stake/")
	sequencePrefix  = []byte("market/seq/")
	balancePrefix   = []byte("bank/balance/")
	versionKeyBytes = []byte("meta/version")
)

func idKey(prefix []byte, id uint64) []byte {
	buf := make([]byte, len(prefix)+8)
	copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[len(prefix):], id)
	return buf
}

func datasetKey(id uint64) []byte { return idKey(datasetPrefix, id) }

func tokenKey(id uint64) []byte { return idKey(tokenPrefix, id) }

func stakeKey(id uint64) []byte { return idKey(stakePrefix, id) }

func sequenceKey(name string) []byte {
	buf := make([]byte, len(sequencePrefix)+len(name))
	copy(buf, sequencePrefix)
	copy(buf[len(sequencePrefix):], name)
	return buf
}

func balanceKey(addr [20]byte) []byte {
	buf := make([]byte, len(balancePrefix)+len(addr))
	copy(buf, balancePrefix)
	copy(buf[len(balancePrefix):], addr[:])
	return buf
}
