package cktap

import "encoding/hex"

// openDimeMagic prefixes every response-signature digest.
const openDimeMagic = "OPENDIME"

// productionFactoryRootHex is the compiled-in Coinkite factory root public key that a
// valid certificate chain must terminate at.
const productionFactoryRootHex = "03028a0e89e70d0ec0d932053a89ab1da7d9182bdc6d2f03e706ee99517d05d9e1"

// emulatorFactoryRootHex is the corresponding root used by the Coinkite
// emulator.
const emulatorFactoryRootHex = "022b6750a0c09f632df32afc5bef66568667e04b2e0f57cb8640ac5a040179442b"

func decodeFactoryRoot(hexKey string) []byte {
	b, err := hex.DecodeString(hexKey)
	if err != nil {
		panic("cktap: malformed compiled-in factory root: " + err.Error())
	}
	return b
}
