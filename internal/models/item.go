package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status representa o estado de monitoramento de um item
type Status string

const (
	StatusActive Status = "active"
	StatusPaused Status = "paused"
	StatusError  Status = "error"
)

// Valid informa se o status é um dos valores conhecidos
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusError:
		return true
	}
	return false
}

// Recipient identifica o dono do item e seus canais de contato
type Recipient struct {
	UserID         int64
	Email          string
	TelegramChatID int64
}

// Item representa um produto sendo monitorado por um usuário
type Item struct {
	ID            int64
	UserID        int64
	URL           string
	Name          string
	ImageURL      string
	InitialPrice  decimal.Decimal
	CurrentPrice  decimal.Decimal
	TargetPrice   decimal.Decimal
	Status        Status
	LastScrapedAt time.Time
	CreatedAt     time.Time
	Owner         Recipient
}

// ItemUpdate descreve a escrita feita após uma extração bem-sucedida.
// Campos nil não são alterados; LastScrapedAt é sempre gravado.
type ItemUpdate struct {
	CurrentPrice  *decimal.Decimal
	Name          *string
	ImageURL      *string
	LastScrapedAt time.Time
}

// Listing é o retrato de uma página de produto devolvido pela extração
type Listing struct {
	Name     string
	Price    decimal.Decimal
	ImageURL string
}
