// Package catalog maps booster kinds to display names and prices.
package catalog

import (
	"math/big"
	"os"

	"giftbox-rest-api/internal/model"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Item is one purchasable booster.
type Item struct {
	Kind  model.BoosterKind
	Code  int
	Name  string
	Title string
	// Price is per unit, in the smallest unit of the payment asset.
	Price *big.Int
}

// Catalog is the exhaustive kind -> item mapping.
type Catalog struct {
	items map[model.BoosterKind]Item
}

// default prices assume a 6-decimal stablecoin.
var defaultItems = []Item{
	{Kind: model.BoosterShuffle, Title: "Shuffle", Price: big.NewInt(100_000)},
	{Kind: model.BoosterHammer, Title: "Hammer", Price: big.NewInt(250_000)},
	{Kind: model.BoosterExtraMoves, Title: "Extra Moves", Price: big.NewInt(500_000)},
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c := &Catalog{items: make(map[model.BoosterKind]Item, len(defaultItems))}
	for _, item := range defaultItems {
		item.Code = item.Kind.Code()
		item.Name = item.Kind.String()
		item.Price = new(big.Int).Set(item.Price)
		c.items[item.Kind] = item
	}
	return c
}

// Get returns the item for kind.
func (c *Catalog) Get(kind model.BoosterKind) (Item, bool) {
	item, ok := c.items[kind]
	return item, ok
}

// Total returns price(kind) * quantity.
func (c *Catalog) Total(kind model.BoosterKind, quantity int64) (*big.Int, error) {
	item, ok := c.items[kind]
	if !ok {
		return nil, errors.Errorf("booster %s is not in the catalog", kind)
	}
	return new(big.Int).Mul(item.Price, big.NewInt(quantity)), nil
}

// Items returns every item in code order.
func (c *Catalog) Items() []Item {
	out := make([]Item, 0, len(c.items))
	for _, kind := range model.AllBoosterKinds() {
		if item, ok := c.items[kind]; ok {
			out = append(out, item)
		}
	}
	return out
}

type overrideFile struct {
	Boosters []struct {
		Kind  string `yaml:"kind"`
		Title string `yaml:"title"`
		Price string `yaml:"price"`
	} `yaml:"boosters"`
}

// LoadOverrides reads a YAML file of price and title overrides on top of the
// default catalog:
//
//	boosters:
//	  - kind: shuffle
//	    price: "150000"
func LoadOverrides(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read catalog file")
	}
	return ParseOverrides(data)
}

// ParseOverrides applies YAML overrides to the default catalog.
func ParseOverrides(data []byte) (*Catalog, error) {
	var file overrideFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrap(err, "failed to parse catalog file")
	}

	c := Default()
	for _, entry := range file.Boosters {
		kind, err := model.ParseBoosterKind(entry.Kind)
		if err != nil {
			return nil, errors.Wrap(err, "catalog entry")
		}
		item := c.items[kind]
		if entry.Title != "" {
			item.Title = entry.Title
		}
		if entry.Price != "" {
			price, ok := new(big.Int).SetString(entry.Price, 10)
			if !ok || price.Sign() <= 0 {
				return nil, errors.Errorf("catalog entry %s: invalid price %q", kind, entry.Price)
			}
			item.Price = price
		}
		c.items[kind] = item
	}
	return c, nil
}
