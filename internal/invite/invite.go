// Package invite builds and reads the tokens used to share a wallet.
package invite

import (
	"fmt"
	"net/url"
	"strings"

	"moneymate/internal/core"
)

const (
	Scheme     = "moneymate"
	joinHost   = "join"
	queryParam = "wallet"
)

// Link returns the deep link that opens the join flow for id.
func Link(id core.WalletID) string {
	u := url.URL{Scheme: Scheme, Host: joinHost, RawQuery: url.Values{queryParam: {string(id)}}.Encode()}
	return u.String()
}

// Message is the text shared alongside the link.
func Message(id core.WalletID) string {
	return fmt.Sprintf("Join my MoneyMate wallet: %s\nOr enter code: %s", Link(id), id)
}

// Parse accepts either a deep link or a bare code and returns a valid id.
func Parse(text string) (core.WalletID, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, Scheme+"://") {
		u, err := url.Parse(text)
		if err != nil || u.Host != joinHost {
			return "", fmt.Errorf("%w: not a join link", core.ErrInvalidWalletID)
		}
		text = strings.TrimSpace(u.Query().Get(queryParam))
	}
	id := core.WalletID(text)
	if err := id.Validate(); err != nil {
		return "", err
	}
	return id, nil
}
