// Package contract renders the sale contract of a paid transaction and
// stores it through the upload collaborator.
package contract

import (
	"bytes"
	"context"
	"fmt"
	"text/template"
	"time"

	"github.com/baharkarakas/evtrade-backend/internal/apperr"
	"github.com/baharkarakas/evtrade-backend/internal/models"
	repo "github.com/baharkarakas/evtrade-backend/internal/repository"
	"github.com/baharkarakas/evtrade-backend/internal/storage"
)

const saleTemplate = `SALE CONTRACT
=============

Contract for transaction {{.Tx.ID}}
Issued: {{.Issued.Format "2006-01-02 15:04 MST"}}

Seller: {{.Seller.Username}} <{{.Seller.Email}}>
Buyer:  {{.Buyer.Username}} <{{.Buyer.Email}}>

Items:
{{- range .Listings}}
  - [{{.Ref.Kind}}] {{.Title}} ({{.Ref.ID}})
{{- end}}

Sale type:   {{.Tx.Type}}
Final price: {{.Tx.FinalPrice}}
Paid so far: {{.Tx.PaidAmount}}
{{- if .Tx.AppointmentDeadline}}
Inspection appointment due by {{.Tx.AppointmentDeadline.Format "2006-01-02"}}.
{{- end}}

The buyer's funds are held in escrow by the platform and released to the
seller, less the platform commission, when the transaction completes.
`

var tmpl = template.Must(template.New("sale").Parse(saleTemplate))

type data struct {
	Tx       models.Transaction
	Buyer    models.User
	Seller   models.User
	Listings []models.Listing
	Issued   time.Time
}

type Generator struct {
	store repo.Store
	up    storage.Uploader
	now   func() time.Time
}

func NewGenerator(store repo.Store, up storage.Uploader) *Generator {
	return &Generator{store: store, up: up, now: time.Now}
}

// Render writes the contract text for tx.
func (g *Generator) Render(ctx context.Context, tx models.Transaction) ([]byte, error) {
	r := g.store.Repos()
	buyer, err := r.Users.GetByID(ctx, tx.BuyerID)
	if err != nil {
		return nil, err
	}
	seller, err := r.Users.GetByID(ctx, tx.SellerID)
	if err != nil {
		return nil, err
	}
	d := data{Tx: tx, Buyer: buyer, Seller: seller, Issued: g.now()}
	for _, ref := range tx.Listings() {
		l, err := r.Listings.Get(ctx, ref)
		if err != nil {
			return nil, err
		}
		d.Listings = append(d.Listings, l)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, d); err != nil {
		return nil, apperr.Internal("render contract", err)
	}
	return buf.Bytes(), nil
}

// Generate produces the contract once and records its URL on the transaction.
// Running it again for the same transaction returns the stored URL.
func (g *Generator) Generate(ctx context.Context, txID string) (string, error) {
	tx, err := g.store.Repos().Transactions.GetByID(ctx, txID)
	if err != nil {
		return "", err
	}
	if tx.ContractURL != nil {
		return *tx.ContractURL, nil
	}
	if tx.IsParent() {
		return "", apperr.BadRequest("contracts are issued per seller transaction")
	}

	doc, err := g.Render(ctx, tx)
	if err != nil {
		return "", err
	}
	url, err := g.up.Upload(ctx, "contracts", tx.ID+".txt", bytes.NewReader(doc))
	if err != nil {
		return "", apperr.Internal("upload contract", err)
	}

	err = g.store.WithTx(ctx, func(r repo.Repos) error {
		if err := r.Locks.Lock(ctx, "tx:"+txID); err != nil {
			return err
		}
		cur, err := r.Transactions.GetForUpdate(ctx, txID)
		if err != nil {
			return err
		}
		if cur.ContractURL != nil {
			url = *cur.ContractURL
			return nil
		}
		cur.ContractURL = &url
		if err := r.Transactions.Update(ctx, cur); err != nil {
			return err
		}
		id := cur.ID
		return r.AuditLogs.Create(ctx, models.AuditLog{
			EntityType: "transaction",
			EntityID:   &id,
			Action:     "contract_generated",
			Details:    map[string]any{"url": url},
		})
	})
	if err != nil {
		return "", fmt.Errorf("store contract url: %w", err)
	}
	return url, nil
}
