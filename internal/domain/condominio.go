package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TipoPagamento is how the condominium settles its closing.
type TipoPagamento string

const (
	PagamentoDireto TipoPagamento = "direto"
	PagamentoBoleto TipoPagamento = "boleto"
)

// Categoria is a machine category.
type Categoria string

const (
	CategoriaLavadora Categoria = "lavadora"
	CategoriaSecadora Categoria = "secadora"
)

// Condominio is a static registry entry (table condominios).
type Condominio struct {
	ID              string          `json:"id"`
	Nome            string          `json:"nome"`
	Endereco        string          `json:"endereco,omitempty"`
	Cidade          string          `json:"cidade,omitempty"`
	UF              string          `json:"uf,omitempty"`
	SindicoNome     string          `json:"sindico_nome,omitempty"`
	SindicoTelefone string          `json:"sindico_telefone,omitempty"`
	Banco           string          `json:"banco,omitempty"`
	Agencia         string          `json:"agencia,omitempty"`
	Conta           string          `json:"conta,omitempty"`
	PixChave        string          `json:"pix_chave,omitempty"`
	Favorecido      string          `json:"favorecido,omitempty"`
	TipoPagamento   TipoPagamento   `json:"tipo_pagamento"`
	TarifaAgua      decimal.Decimal `json:"tarifa_agua"`
	TarifaEnergia   decimal.Decimal `json:"tarifa_energia"`
	TarifaGas       decimal.Decimal `json:"tarifa_gas"`
	PossuiGas       bool            `json:"possui_gas"`
	CashbackPercent decimal.Decimal `json:"cashback_percent"`
	Ativo           bool            `json:"ativo"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       *time.Time      `json:"updated_at,omitempty"`
}

// CondominioInput is the body of POST/PATCH /api/condominios. Pointer fields
// are optional on PATCH.
type CondominioInput struct {
	Nome            *string          `json:"nome,omitempty" validate:"omitempty,min=2"`
	Endereco        *string          `json:"endereco,omitempty"`
	Cidade          *string          `json:"cidade,omitempty"`
	UF              *string          `json:"uf,omitempty" validate:"omitempty,len=2"`
	SindicoNome     *string          `json:"sindico_nome,omitempty"`
	SindicoTelefone *string          `json:"sindico_telefone,omitempty"`
	Banco           *string          `json:"banco,omitempty"`
	Agencia         *string          `json:"agencia,omitempty"`
	Conta           *string          `json:"conta,omitempty"`
	PixChave        *string          `json:"pix_chave,omitempty"`
	Favorecido      *string          `json:"favorecido,omitempty"`
	TipoPagamento   *TipoPagamento   `json:"tipo_pagamento,omitempty" validate:"omitempty,oneof=direto boleto"`
	TarifaAgua      *decimal.Decimal `json:"tarifa_agua,omitempty"`
	TarifaEnergia   *decimal.Decimal `json:"tarifa_energia,omitempty"`
	TarifaGas       *decimal.Decimal `json:"tarifa_gas,omitempty"`
	PossuiGas       *bool            `json:"possui_gas,omitempty"`
	CashbackPercent *decimal.Decimal `json:"cashback_percent,omitempty"`
	Ativo           *bool            `json:"ativo,omitempty"`
}

// Maquina is a machine installed in a condominium (table
// condominio_maquinas). Unique on (condominio_id, categoria, capacidade).
type Maquina struct {
	ID           string          `json:"id"`
	CondominioID string          `json:"condominio_id"`
	Categoria    Categoria       `json:"categoria"`
	Capacidade   string          `json:"capacidade"`
	Tag          string          `json:"tag,omitempty"`
	ValorCiclo   decimal.Decimal `json:"valor_ciclo"`
	Ativa        bool            `json:"ativa"`
	CreatedAt    time.Time       `json:"created_at"`
}

// MaquinaInput is the body of POST/PATCH machine routes.
type MaquinaInput struct {
	Categoria  *Categoria       `json:"categoria,omitempty" validate:"omitempty,oneof=lavadora secadora"`
	Capacidade *string          `json:"capacidade,omitempty" validate:"omitempty,min=1"`
	Tag        *string          `json:"tag,omitempty"`
	ValorCiclo *decimal.Decimal `json:"valor_ciclo,omitempty"`
	Ativa      *bool            `json:"ativa,omitempty"`
}
