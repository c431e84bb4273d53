package valclient

import (
	"encoding/json"
	"fmt"
	"maps"
)

// bundlePrice is one entry of the companion price list.
type bundlePrice struct {
	UUID      string            `json:"uuid"`
	Price     float64           `json:"price"`
	BasePrice float64           `json:"basePrice"`
	Items     []bundlePriceItem `json:"items"`
}

type bundlePriceItem struct {
	UUID            string  `json:"uuid"`
	Type            string  `json:"type"`
	Amount          float64 `json:"amount"`
	BasePrice       float64 `json:"basePrice"`
	DiscountedPrice float64 `json:"discountedPrice"`
	DiscountPercent float64 `json:"discountPercent"`
}

// buildSnapshot decodes and normalizes a version directory's files into a
// new index. files must hold every collection and the price list.
func buildSnapshot(version string, files map[string][]byte) (*snapshot, error) {
	snap := &snapshot{
		version:     version,
		collections: make(map[Collection]map[string]Record, len(catalogCollections)+3),
	}

	var prices []bundlePrice
	if err := json.Unmarshal(files[bundlePricesFile], &prices); err != nil {
		return nil, fmt.Errorf("%s: %w", bundlePricesFile, err)
	}

	for _, col := range catalogCollections {
		var records []Record
		if err := json.Unmarshal(files[string(col)], &records); err != nil {
			return nil, fmt.Errorf("%s: %w", col, err)
		}

		switch col {
		case CollectionBuddies, CollectionSprays:
			for _, rec := range records {
				promoteFirstLevel(rec)
			}
		case CollectionBundles:
			attachBundlePrices(records, prices)
		case CollectionWeapons:
			skins, levels, chromas := deriveWeaponSkins(records)
			snap.collections[CollectionWeaponSkins] = indexByID(skins)
			snap.collections[CollectionWeaponSkinLevels] = indexByID(levels)
			snap.collections[CollectionWeaponSkinChromas] = indexByID(chromas)
		}
		snap.collections[col] = indexByID(records)
	}
	return snap, nil
}

// indexByID keys records by their uuid field. Records without one are skipped.
func indexByID(records []Record) map[string]Record {
	index := make(map[string]Record, len(records))
	for _, rec := range records {
		id, ok := rec["uuid"].(string)
		if !ok || id == "" {
			continue
		}
		index[normalizeID(id)] = rec
	}
	return index
}

// promoteFirstLevel makes a buddy or spray addressable by its first level's
// uuid, which is what loadouts and store offers reference. The parent's uuid
// is kept as baseUuid and the levels array is dropped.
func promoteFirstLevel(rec Record) {
	levels, ok := rec["levels"].([]any)
	if !ok || len(levels) == 0 {
		return
	}
	level, ok := levels[0].(map[string]any)
	if !ok {
		return
	}
	id, ok := level["uuid"].(string)
	if !ok || id == "" {
		return
	}

	rec["baseUuid"] = rec["uuid"]
	rec["uuid"] = id
	if path, ok := level["assetPath"]; ok {
		rec["assetPath"] = path
	}
	delete(rec, "levels")
}

// attachBundlePrices sets price and items on every bundle the price list
// knows about.
func attachBundlePrices(bundles []Record, prices []bundlePrice) {
	byID := make(map[string]bundlePrice, len(prices))
	for _, p := range prices {
		byID[normalizeID(p.UUID)] = p
	}

	for _, bundle := range bundles {
		id, _ := bundle["uuid"].(string)
		p, ok := byID[normalizeID(id)]
		if !ok {
			continue
		}
		price := p.Price
		if price == 0 {
			price = p.BasePrice
		}
		bundle["price"] = price

		items := make([]any, 0, len(p.Items))
		for _, item := range p.Items {
			items = append(items, map[string]any{
				"uuid":            item.UUID,
				"type":            item.Type,
				"amount":          item.Amount,
				"price":           item.BasePrice,
				"discountedPrice": item.DiscountedPrice,
				"discountPercent": item.DiscountPercent,
			})
		}
		bundle["items"] = items
	}
}

// deriveWeaponSkins flattens weapons into skin, skin level and chroma
// collections. Derived records are copies carrying their parent's uuid.
func deriveWeaponSkins(weapons []Record) (skins, levels, chromas []Record) {
	for _, weapon := range weapons {
		weaponID, _ := weapon["uuid"].(string)
		for _, s := range asRecords(weapon["skins"]) {
			skin := maps.Clone(s)
			skin["weaponUuid"] = weaponID
			skins = append(skins, skin)

			skinID, _ := skin["uuid"].(string)
			for _, l := range asRecords(skin["levels"]) {
				level := maps.Clone(l)
				level["skinUuid"] = skinID
				levels = append(levels, level)
			}
			for _, c := range asRecords(skin["chromas"]) {
				chroma := maps.Clone(c)
				chroma["skinUuid"] = skinID
				chromas = append(chromas, chroma)
			}
		}
	}
	return skins, levels, chromas
}

func asRecords(v any) []Record {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	records := make([]Record, 0, len(list))
	for _, item := range list {
		if rec, ok := item.(map[string]any); ok {
			records = append(records, rec)
		}
	}
	return records
}
