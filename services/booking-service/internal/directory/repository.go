package directory

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/model"
	"gorm.io/gorm"
)

var (
	ErrNotFound       = errors.New("directory entry not found")
	ErrDuplicateEmail = errors.New("email already in use")
)

type consultantRow struct {
	ID       int64   `gorm:"primaryKey"`
	FullName string  `gorm:"size:200;not null"`
	Email    *string `gorm:"size:254;uniqueIndex"`
	Phone    string  `gorm:"size:50"`
	// Stored as a JSON array so sqlite and postgres share one schema.
	Specialties []string `gorm:"serializer:json;type:text"`
	JoinDate    string   `gorm:"size:10"`
	Disabled    bool     `gorm:"not null;default:false;index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (consultantRow) TableName() string { return "consultants" }

func (r consultantRow) toModel() model.Consultant {
	c := model.Consultant{
		ID:          r.ID,
		FullName:    r.FullName,
		Phone:       r.Phone,
		Specialties: r.Specialties,
		JoinDate:    r.JoinDate,
		Disabled:    r.Disabled,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.Email != nil {
		c.Email = *r.Email
	}
	if c.Specialties == nil {
		c.Specialties = []string{}
	}
	return c
}

type customerRow struct {
	ID        int64  `gorm:"primaryKey"`
	FullName  string `gorm:"size:200;not null"`
	Email     string `gorm:"size:254;index"`
	Phone     string `gorm:"size:50"`
	Notes     string `gorm:"type:text"`
	Disabled  bool   `gorm:"not null;default:false;index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (customerRow) TableName() string { return "customers" }

func (r customerRow) toModel() model.Customer {
	return model.Customer{
		ID:        r.ID,
		FullName:  r.FullName,
		Email:     r.Email,
		Phone:     r.Phone,
		Notes:     r.Notes,
		Disabled:  r.Disabled,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&consultantRow{}, &customerRow{})
}

type ConsultantPatch struct {
	FullName    *string
	Email       *string
	Phone       *string
	Specialties *[]string
	JoinDate    *string
	Disabled    *bool
}

type ListFilter struct {
	IncludeDisabled bool
	// Search matches name or email, case-insensitively.
	Search string
	Limit  int
}

func (r *Repository) CreateConsultant(ctx context.Context, c model.Consultant) (model.Consultant, error) {
	row := consultantRow{
		FullName:    strings.TrimSpace(c.FullName),
		Phone:       strings.TrimSpace(c.Phone),
		Specialties: cleanList(c.Specialties),
		JoinDate:    strings.TrimSpace(c.JoinDate),
		Disabled:    c.Disabled,
	}
	email, err := normalizeEmail(c.Email)
	if err != nil {
		return model.Consultant{}, err
	}
	row.Email = email
	if row.JoinDate == "" {
		row.JoinDate = clock.FormatDate(time.Now().UTC())
	}
	if err := validateConsultant(row); err != nil {
		return model.Consultant{}, err
	}

	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isDuplicate(err) {
			return model.Consultant{}, apperr.Wrap(apperr.KindConflict, ErrDuplicateEmail, "consultant email %s already in use", *row.Email)
		}
		return model.Consultant{}, err
	}
	return row.toModel(), nil
}

func (r *Repository) GetConsultant(ctx context.Context, id int64) (model.Consultant, error) {
	var row consultantRow
	err := r.db.WithContext(ctx).First(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Consultant{}, apperr.Wrap(apperr.KindNotFound, ErrNotFound, "consultant %d not found", id)
	}
	if err != nil {
		return model.Consultant{}, err
	}
	return row.toModel(), nil
}

func (r *Repository) UpdateConsultant(ctx context.Context, id int64, patch ConsultantPatch) (model.Consultant, error) {
	var row consultantRow
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&row, id).Error; err != nil {
			return err
		}
		if patch.FullName != nil {
			row.FullName = strings.TrimSpace(*patch.FullName)
		}
		if patch.Email != nil {
			email, err := normalizeEmail(*patch.Email)
			if err != nil {
				return err
			}
			row.Email = email
		}
		if patch.Phone != nil {
			row.Phone = strings.TrimSpace(*patch.Phone)
		}
		if patch.Specialties != nil {
			row.Specialties = cleanList(*patch.Specialties)
		}
		if patch.JoinDate != nil {
			row.JoinDate = strings.TrimSpace(*patch.JoinDate)
		}
		if patch.Disabled != nil {
			row.Disabled = *patch.Disabled
		}
		if err := validateConsultant(row); err != nil {
			return err
		}
		return tx.Save(&row).Error
	})
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return model.Consultant{}, apperr.Wrap(apperr.KindNotFound, ErrNotFound, "consultant %d not found", id)
	case isDuplicate(err):
		return model.Consultant{}, apperr.Wrap(apperr.KindConflict, ErrDuplicateEmail, "consultant email already in use")
	case err != nil:
		return model.Consultant{}, err
	}
	return row.toModel(), nil
}

// DisableConsultant is the only delete: rows stay for appointment history.
func (r *Repository) DisableConsultant(ctx context.Context, id int64) (model.Consultant, error) {
	disabled := true
	return r.UpdateConsultant(ctx, id, ConsultantPatch{Disabled: &disabled})
}

func (r *Repository) ListConsultants(ctx context.Context, f ListFilter) ([]model.Consultant, error) {
	q := r.db.WithContext(ctx).Model(&consultantRow{}).Order("id")
	if !f.IncludeDisabled {
		q = q.Where("disabled = ?", false)
	}
	if s := strings.ToLower(strings.TrimSpace(f.Search)); s != "" {
		like := "%" + s + "%"
		q = q.Where("LOWER(full_name) LIKE ? OR LOWER(email) LIKE ?", like, like)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var rows []consultantRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.Consultant, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}

func (r *Repository) CreateCustomer(ctx context.Context, c model.Customer) (model.Customer, error) {
	row := customerRow{
		FullName: strings.TrimSpace(c.FullName),
		Email:    strings.ToLower(strings.TrimSpace(c.Email)),
		Phone:    strings.TrimSpace(c.Phone),
		Notes:    strings.TrimSpace(c.Notes),
	}
	if row.FullName == "" {
		return model.Customer{}, apperr.Validation("full_name is required")
	}
	if row.Email != "" {
		if _, err := mail.ParseAddress(row.Email); err != nil {
			return model.Customer{}, apperr.Validation("invalid email %q", row.Email)
		}
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return model.Customer{}, err
	}
	return row.toModel(), nil
}

func (r *Repository) GetCustomer(ctx context.Context, id int64) (model.Customer, error) {
	var row customerRow
	err := r.db.WithContext(ctx).First(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Customer{}, apperr.Wrap(apperr.KindNotFound, ErrNotFound, "customer %d not found", id)
	}
	if err != nil {
		return model.Customer{}, err
	}
	return row.toModel(), nil
}

func (r *Repository) ListCustomers(ctx context.Context, f ListFilter) ([]model.Customer, error) {
	q := r.db.WithContext(ctx).Model(&customerRow{}).Order("id")
	if !f.IncludeDisabled {
		q = q.Where("disabled = ?", false)
	}
	if s := strings.ToLower(strings.TrimSpace(f.Search)); s != "" {
		like := "%" + s + "%"
		q = q.Where("LOWER(full_name) LIKE ? OR LOWER(email) LIKE ?", like, like)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var rows []customerRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.Customer, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}

func (r *Repository) DisableCustomer(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Model(&customerRow{}).Where("id = ?", id).Update("disabled", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.Wrap(apperr.KindNotFound, ErrNotFound, "customer %d not found", id)
	}
	return nil
}

func validateConsultant(row consultantRow) error {
	if row.FullName == "" {
		return apperr.Validation("full_name is required")
	}
	if row.JoinDate != "" {
		if _, err := clock.ParseDate(row.JoinDate); err != nil {
			return apperr.Validation("join_date: %v", err)
		}
	}
	return nil
}

// normalizeEmail lower-cases the identity join key; empty becomes NULL so the unique index
// ignores consultants without an email.
func normalizeEmail(raw string) (*string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return nil, nil
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return nil, apperr.Validation("invalid email %q", raw)
	}
	return &email, nil
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
