package connector

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnsupportedPlatformType возвращается для неизвестного типа площадки
var ErrUnsupportedPlatformType = errors.New("unsupported platform type")

// Registry выбирает коннектор по типу аутентификации площадки.
//
// Диспетчеризация идет только по типу: добавление пятой площадки с
// известным типом не требует изменений ни здесь, ни в Connection Manager.
// Новый тип - это новый коннектор плюс один Register.
type Registry struct {
	mu         sync.RWMutex
	connectors map[string]Connector
}

// NewRegistry создает реестр со встроенными коннекторами,
// разделяющими один HTTP клиент
func NewRegistry(client *HTTPClient) *Registry {
	r := &Registry{
		connectors: make(map[string]Connector),
	}

	r.Register(NewSessionLoginConnector(client))
	r.Register(NewAPIKeyConnector(client))
	r.Register(NewOAuth2Connector(client))
	r.Register(NewSessionIDConnector(client))

	return r
}

// Register добавляет коннектор; повторная регистрация типа замещает старый
func (r *Registry) Register(c Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors[c.Type()] = c
}

// ForType возвращает коннектор для типа площадки
func (r *Registry) ForType(platformType string) (Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.connectors[platformType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPlatformType, platformType)
	}
	return c, nil
}

// SupportedTypes возвращает отсортированный список известных типов
func (r *Registry) SupportedTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.connectors))
	for t := range r.connectors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
