package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/lunarbet/arbscan/internal/domain/event"
)

// Key builds the store key for one fixture/market combination.
func Key(naturalKey string, market event.MarketKind) string {
	return naturalKey + "|" + string(market)
}

// HashLines digests the best (maximum) moneyline price per side. Two fetches
// with identical best prices produce identical hashes, so their writes can be
// skipped. Only valid quotes participate; a missing side hashes as 0.
func HashLines(lines []event.Line) string {
	var bestA, bestB float64
	for _, line := range lines {
		if line.Market != event.MarketMoneyline || !line.Valid() {
			continue
		}
		switch line.Outcome {
		case event.OutcomeA:
			if line.Price > bestA {
				bestA = line.Price
			}
		case event.OutcomeB:
			if line.Price > bestB {
				bestB = line.Price
			}
		}
	}

	payload := "A:" + strconv.FormatFloat(bestA, 'f', -1, 64) +
		"|B:" + strconv.FormatFloat(bestB, 'f', -1, 64)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
