package scheduler

import (
	"time"

	"github.com/rs/zerolog"
)

// TradingWindow is a single trading period within a day
type TradingWindow struct {
	OpenHour    int
	OpenMinute  int
	CloseHour   int
	CloseMinute int
}

// ExchangeCalendar defines trading hours and holidays for an exchange
type ExchangeCalendar struct {
	Code           string
	Name           string
	Timezone       *time.Location
	TradingWindows []TradingWindow
	Holidays2026   []time.Time
}

// MarketHoursService answers whether the US equity market is open.
// Insider filings come from US exchanges only, so the calendar set is
// NYSE and NASDAQ.
type MarketHoursService struct {
	calendars map[string]*ExchangeCalendar
	log       zerolog.Logger
}

// NewMarketHoursService creates a new market hours service
func NewMarketHoursService(log zerolog.Logger) *MarketHoursService {
	service := &MarketHoursService{
		calendars: make(map[string]*ExchangeCalendar),
		log:       log.With().Str("component", "market_hours").Logger(),
	}

	service.initializeCalendars()
	return service
}

func (s *MarketHoursService) initializeCalendars() {
	nyLoc, _ := time.LoadLocation("America/New_York")
	usHolidays := []time.Time{
		time.Date(2026, 1, 1, 0, 0, 0, 0, nyLoc),   // New Year's Day
		time.Date(2026, 1, 19, 0, 0, 0, 0, nyLoc),  // MLK Day
		time.Date(2026, 2, 16, 0, 0, 0, 0, nyLoc),  // Presidents Day
		time.Date(2026, 4, 3, 0, 0, 0, 0, nyLoc),   // Good Friday
		time.Date(2026, 5, 25, 0, 0, 0, 0, nyLoc),  // Memorial Day
		time.Date(2026, 6, 19, 0, 0, 0, 0, nyLoc),  // Juneteenth
		time.Date(2026, 7, 3, 0, 0, 0, 0, nyLoc),   // Independence Day (observed)
		time.Date(2026, 9, 7, 0, 0, 0, 0, nyLoc),   // Labor Day
		time.Date(2026, 11, 26, 0, 0, 0, 0, nyLoc), // Thanksgiving
		time.Date(2026, 12, 25, 0, 0, 0, 0, nyLoc), // Christmas
	}

	// Regular session 9:30-16:00 ET
	windows := []TradingWindow{
		{OpenHour: 9, OpenMinute: 30, CloseHour: 16, CloseMinute: 0},
	}

	s.calendars["NYSE"] = &ExchangeCalendar{
		Code:           "XNYS",
		Name:           "NYSE",
		Timezone:       nyLoc,
		TradingWindows: windows,
		Holidays2026:   usHolidays,
	}
	s.calendars["NASDAQ"] = &ExchangeCalendar{
		Code:           "XNAS",
		Name:           "NASDAQ",
		Timezone:       nyLoc,
		TradingWindows: windows,
		Holidays2026:   usHolidays,
	}

	s.log.Info().Int("calendars", len(s.calendars)).Msg("Market hours calendars initialized")
}

// GetCalendar returns the calendar for an exchange, defaulting to NYSE
func (s *MarketHoursService) GetCalendar(exchangeName string) *ExchangeCalendar {
	if cal, ok := s.calendars[exchangeName]; ok {
		return cal
	}
	return s.calendars["NYSE"]
}

// IsMarketOpen checks if a market is currently open for trading
func (s *MarketHoursService) IsMarketOpen(exchangeName string) bool {
	return s.isOpenAt(exchangeName, time.Now())
}

func (s *MarketHoursService) isOpenAt(exchangeName string, at time.Time) bool {
	cal := s.GetCalendar(exchangeName)
	now := at.In(cal.Timezone)

	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return false
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, cal.Timezone)
	for _, holiday := range cal.Holidays2026 {
		if holiday.Equal(today) {
			return false
		}
	}

	currentMinutes := now.Hour()*60 + now.Minute()
	for _, window := range cal.TradingWindows {
		openMinutes := window.OpenHour*60 + window.OpenMinute
		closeMinutes := window.CloseHour*60 + window.CloseMinute
		if currentMinutes >= openMinutes && currentMinutes < closeMinutes {
			return true
		}
	}

	return false
}

// MarketStatus is the reported status of one market
type MarketStatus struct {
	Exchange string `json:"exchange"`
	IsOpen   bool   `json:"is_open"`
	Timezone string `json:"timezone"`
}

// GetAllMarketStatuses returns status for all configured markets
func (s *MarketHoursService) GetAllMarketStatuses() []MarketStatus {
	statuses := make([]MarketStatus, 0, len(s.calendars))
	for name, cal := range s.calendars {
		statuses = append(statuses, MarketStatus{
			Exchange: name,
			IsOpen:   s.IsMarketOpen(name),
			Timezone: cal.Timezone.String(),
		})
	}
	return statuses
}
