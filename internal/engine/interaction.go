package engine

import (
	"github.com/kopertop/ai-dnd-expo-sub002/internal/domain"
)

// InteractionState - явное состояние взаимодействия с картой: что
// выбрано, какой предпросмотр движения показывать. Владеет им один
// координатор; UI получает копию только для чтения вместо россыпи
// разрозненных флагов по экранам.
type InteractionState struct {
	SelectedTokenID string
	SelectedEntity  string

	// MovementPreview: клетка -> стоимость, в пределах остатка бюджета
	MovementPreview map[domain.Position]int

	// PlacementMode: идет расстановка нового токена этого типа ("" = нет)
	PlacementMode string
}

// Clone возвращает копию для передачи наружу
func (is *InteractionState) Clone() InteractionState {
	c := InteractionState{
		SelectedTokenID: is.SelectedTokenID,
		SelectedEntity:  is.SelectedEntity,
		PlacementMode:   is.PlacementMode,
	}
	if is.MovementPreview != nil {
		c.MovementPreview = make(map[domain.Position]int, len(is.MovementPreview))
		for k, v := range is.MovementPreview {
			c.MovementPreview[k] = v
		}
	}
	return c
}

func (is *InteractionState) reset() {
	is.SelectedTokenID = ""
	is.SelectedEntity = ""
	is.MovementPreview = nil
	is.PlacementMode = ""
}
