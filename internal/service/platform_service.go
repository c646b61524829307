package service

import (
	"errors"

	"brokerlink/internal/models"
	"brokerlink/internal/repository"
	"brokerlink/pkg/utils"
)

// knownPlatforms - статический набор дескрипторов площадок.
// Реестр досевается на каждом старте: отсутствующие строки вставляются,
// существующие никогда не перезаписываются.
var knownPlatforms = []models.Platform{
	{
		Code:               "tradelocker",
		Name:               "TradeLocker",
		Type:               models.PlatformTypeSessionLogin,
		APIBaseURL:         "https://api.tradelocker.com",
		WebTradingURL:      "https://web.tradelocker.com",
		SupportsAPI:        true,
		SupportsWebTrading: true,
	},
	{
		Code:               "matchtrader",
		Name:               "Match-Trader",
		Type:               models.PlatformTypeAPIKey,
		APIBaseURL:         "https://api.matchtrader.com",
		WebTradingURL:      "https://web.matchtrader.com",
		SupportsAPI:        true,
		SupportsWebTrading: true,
	},
	{
		Code:               "ctrader",
		Name:               "cTrader",
		Type:               models.PlatformTypeOAuth2,
		APIBaseURL:         "https://api.ctrader.com",
		WebTradingURL:      "https://web.ctrader.com",
		SupportsAPI:        true,
		SupportsWebTrading: true,
	},
	{
		Code:               "metatrader5",
		Name:               "MetaTrader 5",
		Type:               models.PlatformTypeSessionID,
		APIBaseURL:         "https://mt5api.brokerlink.io",
		SupportsAPI:        true,
		SupportsWebTrading: false,
	},
}

// PlatformService - реестр торговых площадок
type PlatformService struct {
	platformRepo PlatformRepositoryInterface
}

// NewPlatformService создает новый экземпляр сервиса
func NewPlatformService(platformRepo PlatformRepositoryInterface) *PlatformService {
	return &PlatformService{platformRepo: platformRepo}
}

// EnsureSeeded идемпотентно досевает реестр известными площадками.
// Вызывается на старте; любая невосстановимая ошибка фатальна.
func (s *PlatformService) EnsureSeeded() error {
	for i := range knownPlatforms {
		descriptor := knownPlatforms[i]

		exists, err := s.platformRepo.ExistsByCode(descriptor.Code)
		if err != nil {
			return &RegistrySeedError{Code: descriptor.Code, Cause: err}
		}
		if exists {
			continue
		}

		if err := s.platformRepo.Create(&descriptor); err != nil {
			// Конкурирующий экземпляр успел вставить ту же строку
			if errors.Is(err, repository.ErrPlatformExists) {
				continue
			}
			return &RegistrySeedError{Code: descriptor.Code, Cause: err}
		}

		utils.L().Sugar().Infow("platform seeded",
			"code", descriptor.Code, "type", descriptor.Type)
	}

	return nil
}

// ListPlatforms возвращает все зарегистрированные площадки
func (s *PlatformService) ListPlatforms() ([]*models.Platform, error) {
	var platforms []*models.Platform

	err := withRetry("list platforms", func() error {
		var err error
		platforms, err = s.platformRepo.GetAll()
		return err
	})
	if err != nil {
		return nil, err
	}

	return platforms, nil
}

// GetPlatform возвращает площадку по коду
func (s *PlatformService) GetPlatform(code string) (*models.Platform, error) {
	platform, err := s.platformRepo.GetByCode(code)
	if err != nil {
		if errors.Is(err, repository.ErrPlatformNotFound) {
			return nil, ErrPlatformUnknown
		}
		return nil, err
	}
	return platform, nil
}
