package store

import (
	"encoding/binary"
	"fmt"
)

// Map names a primary entity map. Keys are monotonically assigned ids.
type Map string

const (
	Tokens         Map = "tokens"
	Pools          Map = "pools"
	Users          Map = "users"
	Requests       Map = "requests"
	Txs            Map = "txs"
	Transfers      Map = "transfers"
	Claims         Map = "claims"
	LPBalances     Map = "lp_balances"
	SolanaDeposits Map = "solana_deposits"
)

// Maps lists every primary map in a stable order.
var Maps = []Map{Tokens, Pools, Users, Requests, Txs, Transfers, Claims, LPBalances, SolanaDeposits}

// ParseMap resolves an external map name.
func ParseMap(name string) (Map, bool) {
	for _, m := range Maps {
		if string(m) == name {
			return m, true
		}
	}
	return "", false
}

// Index is a unique secondary index: key -> id.
type Index string

const (
	ByPrincipal Index = "principal"  // user principal -> user id
	ByReferral  Index = "referral"   // referral code -> user id
	ByAddress   Index = "token_addr" // CHAIN.SYMBOL -> token id
	ByPair      Index = "pair"       // ledger.PairKey -> pool id
	ByProof     Index = "proof"      // inbound proof key -> transfer id
	ByLPKey     Index = "lp"         // ledger.LPKey -> lp balance id
	BySignature Index = "solana_sig" // tx signature -> deposit id
)

// Set is a multi-valued index: key -> {ids}.
type Set string

const (
	UserClaims Set = "user_claims"
	UserLP     Set = "user_lp"
	PoolLP     Set = "pool_lp"
)

const (
	prefixPrimary = "m/"
	prefixArchive = "a/"
	prefixIndex   = "i/"
	prefixSet     = "s/"
	prefixCounter = "c/"
	prefixMeta    = "x/"
)

func be64(n uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	return buf[:]
}

func mapPrefix(m Map) []byte {
	return []byte(prefixPrimary + string(m) + "/")
}

func archivePrefix(m Map) []byte {
	return []byte(prefixArchive + string(m) + "/")
}

func primaryKey(m Map, id uint64) []byte {
	return append(mapPrefix(m), be64(id)...)
}

func archiveKey(m Map, id uint64) []byte {
	return append(archivePrefix(m), be64(id)...)
}

func indexKey(idx Index, key string) []byte {
	return []byte(prefixIndex + string(idx) + "/" + key)
}

func setPrefix(set Set, key string) []byte {
	return []byte(prefixSet + string(set) + "/" + key + "/")
}

func setKey(set Set, key string, id uint64) []byte {
	return append(setPrefix(set, key), be64(id)...)
}

func counterKey(m Map) []byte {
	return []byte(prefixCounter + string(m))
}

func metaKey(name string) []byte {
	return []byte(prefixMeta + name)
}

// upperBound returns the smallest key greater than every key with prefix.
func upperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

func idFromKey(key []byte) (uint64, error) {
	if len(key) < 8 {
		return 0, fmt.Errorf("short key %q", key)
	}
	return binary.BigEndian.Uint64(key[len(key)-8:]), nil
}

func decodeID(v []byte) (uint64, error) {
	if len(v) != 8 {
		return 0, fmt.Errorf("index value has %d bytes, want 8", len(v))
	}
	return binary.BigEndian.Uint64(v), nil
}
