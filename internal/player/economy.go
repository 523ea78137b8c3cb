package player

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/arkavel/voidtable/internal/protocol"
	"github.com/arkavel/voidtable/pkg/types"
)

// vendorPrice is one line of the standing vendor catalog. Prices are flat;
// scarcity is modelled by the Director gating access, not by haggling.
type vendorPrice struct {
	Currency string
	Price    int
}

var vendorCatalog = map[string]vendorPrice{
	"ritual_focus":   {Currency: "spark", Price: 4},
	"offering":       {Currency: "grain", Price: 2},
	"ward_charm":     {Currency: "drip", Price: 3},
	"breath_filter":  {Currency: "breath", Price: 2},
	"field_dressing": {Currency: "grain", Price: 1},
	"seed_casing":    {Currency: "spark", Price: 5},
}

var purchaseWords = []string{"buy ", "purchase ", "pay for ", "acquire "}
var transferWords = []string{"give ", "hand ", "transfer ", "pay "}

// settleEconomy inspects a successful intent for purchases and inter-party
// transfers and applies them to the sheet. Called only after the Director
// ruled the action a success, so the fiction already supports the exchange.
func (a *Agent) settleEconomy(intent string) {
	lower := strings.ToLower(intent)

	if containsAny(lower, purchaseWords) {
		a.settlePurchase(lower)
	}
	if containsAny(lower, transferWords) {
		a.settleTransfer(lower)
	}
}

// settlePurchase deducts the catalog price and adds the item when the intent
// names a catalog entry the character can afford.
func (a *Agent) settlePurchase(lowerIntent string) {
	for item, price := range vendorCatalog {
		spoken := strings.ReplaceAll(item, "_", " ")
		if !strings.Contains(lowerIntent, spoken) && !strings.Contains(lowerIntent, item) {
			continue
		}
		wallet := a.sheet.Energy.Currency(price.Currency)
		if wallet == nil || *wallet < price.Price {
			slog.Debug("purchase declined, insufficient funds",
				"player", a.sheet.Name, "item", item, "currency", price.Currency)
			return
		}
		*wallet -= price.Price
		if a.sheet.Inventory == nil {
			a.sheet.Inventory = make(map[string]int)
		}
		a.sheet.Inventory[item]++
		slog.Info("purchase settled",
			"player", a.sheet.Name, "item", item,
			"price", price.Price, "currency", price.Currency)
		return
	}
}

// settleTransfer parses "give 3 spark to Name" style intents and queues the
// transfer for the recipient's next turn. The sender's wallet is debited
// immediately so a transfer cannot be declared twice against the same funds.
func (a *Agent) settleTransfer(lowerIntent string) {
	amount, currency := parseAmount(lowerIntent)
	if amount <= 0 || currency == "" {
		return
	}

	for _, p := range a.state.Players() {
		if p.AgentID == a.ID() {
			continue
		}
		if !strings.Contains(lowerIntent, strings.ToLower(p.Name)) {
			continue
		}
		wallet := a.sheet.Energy.Currency(currency)
		if wallet == nil || *wallet < amount {
			slog.Debug("transfer declined, insufficient funds",
				"player", a.sheet.Name, "currency", currency, "amount", amount)
			return
		}
		*wallet -= amount
		a.state.QueueTransfer(p.AgentID, protocol.Transfer{
			From:     a.sheet.Name,
			To:       p.Name,
			Currency: currency,
			Amount:   amount,
		})
		slog.Info("transfer queued",
			"from", a.sheet.Name, "to", p.Name,
			"amount", amount, "currency", currency)
		return
	}
}

// parseAmount finds the first "<number> <currency>" pair in the intent.
func parseAmount(lowerIntent string) (int, string) {
	words := strings.Fields(lowerIntent)
	for i, w := range words {
		n, err := strconv.Atoi(strings.Trim(w, ".,!"))
		if err != nil || n <= 0 || i+1 >= len(words) {
			continue
		}
		next := strings.Trim(words[i+1], ".,!")
		switch next {
		case "breath", "drip", "grain", "spark":
			return n, next
		}
	}
	return 0, ""
}

// receiveTransfer applies a queued transfer delivered with a turn request.
func (a *Agent) receiveTransfer(t protocol.Transfer) {
	wallet := a.sheet.Energy.Currency(t.Currency)
	if wallet == nil {
		slog.Warn("transfer with unknown currency dropped",
			"player", a.sheet.Name, "currency", t.Currency)
		return
	}
	*wallet += t.Amount
	slog.Info("transfer received",
		"player", a.sheet.Name, "from", t.From,
		"amount", t.Amount, "currency", t.Currency)
}

// consumeOffering burns one offering: inventory first, then a carried seed.
// Hollow seeds burn before attuned ones; raw seeds are never offered.
func (a *Agent) consumeOffering() {
	if a.sheet.Inventory["offering"] > 0 {
		a.sheet.Inventory["offering"]--
		return
	}

	seeds := a.sheet.Energy.Seeds
	for i, s := range seeds {
		if s.Variant == types.SeedHollow {
			a.sheet.Energy.Seeds = append(seeds[:i], seeds[i+1:]...)
			return
		}
	}
	for i, s := range seeds {
		if s.Variant == types.SeedAttuned {
			a.sheet.Energy.Seeds = append(seeds[:i], seeds[i+1:]...)
			return
		}
	}
}
