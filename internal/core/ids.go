package core

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	walletIDPrefix = "wallet_"
	base36         = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// NewWalletID returns "wallet_" + base36(unix millis) + 6 random base36 chars.
// The shape is shared with invite codes already in circulation.
func NewWalletID(now time.Time) WalletID {
	return WalletID(walletIDPrefix + strconv.FormatInt(now.UnixMilli(), 36) + randomBase36(6))
}

// NewTransactionID returns a random id, unique within any month.
func NewTransactionID() string {
	return uuid.New().String()
}

func randomBase36(n int) string {
	out := make([]byte, n)
	max := big.NewInt(int64(len(base36)))
	for i := range out {
		v, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand does not fail on supported platforms; keep the id usable anyway
			v = big.NewInt(time.Now().UnixNano() % int64(len(base36)))
		}
		out[i] = base36[v.Int64()]
	}
	return string(out)
}
