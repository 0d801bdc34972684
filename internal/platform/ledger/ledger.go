// Package ledger encadena registros append-only con hashes BLAKE3 para
// que cualquier edición, borrado o reordenamiento posterior sea detectable.
//
// Hash(n) = BLAKE3-keyed(dominio, CBOR(prevHash(n), payload(n)))
// con prevHash(1) = "".
package ledger

import (
	"encoding/hex"
	"errors"
	"fmt"

	"consent-ledger/internal/platform/codec"

	"github.com/zeebo/blake3"
)

var ErrBrokenChain = errors.New("ledger: broken chain")

// auditDomainKey separa estos hashes de cualquier otro uso de BLAKE3.
var auditDomainKey = [32]byte{
	'c', 'o', 'n', 's', 'e', 'n', 't', '.', 'a', 'u', 'd', 'i', 't',
}

// Record es lo que un store necesita exponer para verificar la cadena.
// ChainPayload NO debe incluir el propio hash.
type Record interface {
	ChainPrev() string
	ChainHash() string
	ChainPayload() any
}

type sealInput struct {
	Prev    string `cbor:"prev"`
	Payload any    `cbor:"payload"`
}

// Seal calcula el hash de payload encadenado a prevHash.
func Seal(prevHash string, payload any) (string, error) {
	b, err := codec.Marshal(sealInput{Prev: prevHash, Payload: payload})
	if err != nil {
		return "", fmt.Errorf("ledger: encode payload: %w", err)
	}

	h, err := blake3.NewKeyed(auditDomainKey[:])
	if err != nil {
		return "", fmt.Errorf("ledger: keyed hasher: %w", err)
	}
	_, _ = h.Write(b)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify recorre records en orden y recalcula cada eslabón.
func Verify[R Record](records []R) error {
	prev := ""
	for i, r := range records {
		if r.ChainPrev() != prev {
			return fmt.Errorf("%w: record %d prev hash mismatch", ErrBrokenChain, i+1)
		}
		want, err := Seal(prev, r.ChainPayload())
		if err != nil {
			return err
		}
		if r.ChainHash() != want {
			return fmt.Errorf("%w: record %d hash mismatch", ErrBrokenChain, i+1)
		}
		prev = r.ChainHash()
	}
	return nil
}
