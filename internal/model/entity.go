package model

import "strings"

type EntityType string

const (
	EntityTypeBank           EntityType = "bank"
	EntityTypeExchangeOffice EntityType = "exchange_office"
)

func (t EntityType) Valid() bool {
	switch t {
	case EntityTypeBank, EntityTypeExchangeOffice:
		return true
	}
	return false
}

// Entity - банк или обменный пункт, который публикует курс
type Entity struct {
	ID             int64      `db:"id"`
	PlatformSource string     `db:"platform_source"`
	Name           string     `db:"name"`
	City           *string    `db:"city"`
	Type           EntityType `db:"type"`
}

// NewEntity обрезает пробелы и приводит пустой город к отсутствующему
func NewEntity(platformSource, name string, city *string, typ EntityType) (Entity, error) {
	e := Entity{
		PlatformSource: strings.TrimSpace(platformSource),
		Name:           strings.TrimSpace(name),
		Type:           EntityType(strings.TrimSpace(string(typ))),
	}
	if city != nil {
		if c := strings.TrimSpace(*city); c != "" {
			e.City = &c
		}
	}
	if err := e.Validate(); err != nil {
		return Entity{}, err
	}
	return e, nil
}

func (e Entity) Validate() error {
	if e.PlatformSource == "" {
		return invalid("platform_source", "must not be empty")
	}
	if e.Name == "" {
		return invalid("name", "must not be empty")
	}
	if e.City != nil && *e.City == "" {
		return invalid("city", "must be absent rather than empty")
	}
	if !e.Type.Valid() {
		return invalid("type", "unknown entity type %q", e.Type)
	}
	return nil
}

func (e Entity) Key() EntityKey {
	k := EntityKey{PlatformSource: e.PlatformSource, Name: e.Name}
	if e.City != nil {
		k.City = *e.City
		k.HasCity = true
	}
	return k
}

// EntityKey - ключ идентичности (platform_source, name, city).
// Значение сравнимо и годится как ключ map: отсутствующий город
// совпадает только с отсутствующим.
type EntityKey struct {
	PlatformSource string
	Name           string
	City           string
	HasCity        bool
}

// Matches сравнивает ключи с NULL-толерантной семантикой города
func (k EntityKey) Matches(other EntityKey) bool {
	if k.PlatformSource != other.PlatformSource || k.Name != other.Name {
		return false
	}
	if k.HasCity != other.HasCity {
		return false
	}
	return !k.HasCity || k.City == other.City
}

// CityArg возвращает город как nullable-значение для SQL
func (k EntityKey) CityArg() any {
	if !k.HasCity {
		return nil
	}
	return k.City
}
