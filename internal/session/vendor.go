package session

import (
	"log/slog"

	"github.com/arkavel/voidtable/internal/mech"
	"github.com/arkavel/voidtable/internal/protocol"
)

// vendorNames are the travelling merchants the scene rotation draws from.
var vendorNames = []string{
	"Issa of the Ninth Berth",
	"The Tally-Keeper",
	"Old Venn",
	"The Brinefall Factor",
}

// gateItems are the catalog entries a vendor gate can demand. They mirror the
// standing vendor catalog the player agents settle purchases against.
var gateItems = []string{
	"ritual_focus", "ward_charm", "breath_filter", "seed_casing",
}

// maybeSpawnVendor rotates a vendor into the scene on the configured cadence.
// A vendor already present stays until bought from or replaced.
func (o *Orchestrator) maybeSpawnVendor(round int) {
	freq := o.cfg.VendorSpawnFrequency
	if freq <= 0 || round%freq != 0 {
		return
	}
	if o.scenario.ActiveVendor != "" {
		return
	}

	o.scenario.ActiveVendor = vendorNames[o.rng.Intn(len(vendorNames))]
	if o.cfg.ForceVendorGate {
		item := gateItems[o.rng.Intn(len(gateItems))]
		o.scenario.RequiredPurchase = item
		o.scenario.PurchaseGate = "the party cannot move on until someone buys a " + item
		o.gateBaseline = o.inventoryCount(item)
	}

	o.engine.Log().Emit(mech.EventVendorArrived, map[string]any{
		"round": round, "vendor": o.scenario.ActiveVendor,
		"required_purchase": o.scenario.RequiredPurchase,
	})
	slog.Info("vendor arrives",
		"vendor", o.scenario.ActiveVendor,
		"required_purchase", o.scenario.RequiredPurchase)
	o.broadcast(protocol.ScenarioUpdate, o.scenario)
}

// vendorGateOpen reports whether story advancement is currently allowed.
// The gate clears once any party member's stock of the required item rises
// above what the party held when the vendor arrived.
func (o *Orchestrator) vendorGateOpen() bool {
	item := o.scenario.RequiredPurchase
	if item == "" {
		return true
	}
	if o.inventoryCount(item) > o.gateBaseline {
		o.engine.Log().Emit(mech.EventVendorGateCleared, map[string]any{
			"vendor": o.scenario.ActiveVendor, "item": item,
		})
		slog.Info("purchase gate cleared", "item", item)
		o.clearVendor()
		return true
	}
	return false
}

// clearVendor removes the vendor and any gate from the scene.
func (o *Orchestrator) clearVendor() {
	o.scenario.ActiveVendor = ""
	o.scenario.RequiredPurchase = ""
	o.scenario.PurchaseGate = ""
	o.gateBaseline = 0
}

// inventoryCount sums the party's stock of one inventory item.
func (o *Orchestrator) inventoryCount(item string) int {
	total := 0
	for _, slot := range o.players {
		total += slot.sheet.Inventory[item]
	}
	return total
}
