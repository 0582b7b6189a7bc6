package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"residence/internal/lock"
	"residence/internal/models"
)

type userRecord struct {
	ID           string `gorm:"primaryKey;type:varchar(36)"`
	Email        string `gorm:"uniqueIndex;not null"`
	Name         string
	PasswordHash []byte
	IsAdmin      bool `gorm:"not null;default:false"`
	CreatedAt    time.Time
}

func (userRecord) TableName() string { return "users" }

type sessionRecord struct {
	Token     string    `gorm:"primaryKey"`
	UserID    string    `gorm:"type:varchar(36);index;not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	CreatedAt time.Time
}

func (sessionRecord) TableName() string { return "sessions" }

type facilityRecord struct {
	ID             string `gorm:"primaryKey;type:varchar(36)"`
	BuildingID     string `gorm:"index;not null"`
	Name           string `gorm:"not null"`
	Capacity       *int
	OperatingHours datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt      time.Time
}

func (facilityRecord) TableName() string { return "facilities" }

type householdRecord struct {
	ID         string `gorm:"primaryKey;type:varchar(36)"`
	BuildingID string `gorm:"index;not null"`
	Name       string
	Apartment  string
}

func (householdRecord) TableName() string { return "households" }

type householdMemberRecord struct {
	HouseholdID string           `gorm:"primaryKey;type:varchar(36)"`
	UserID      string           `gorm:"primaryKey;type:varchar(36);index"`
	Household   *householdRecord `gorm:"foreignKey:HouseholdID;constraint:OnDelete:CASCADE"`
	User        *userRecord      `gorm:"foreignKey:UserID"`
}

func (householdMemberRecord) TableName() string { return "household_members" }

type reservationRecord struct {
	ID             string    `gorm:"primaryKey;type:varchar(36)"`
	FacilityID     string    `gorm:"type:varchar(36);not null;index:idx_reservations_facility_start,priority:1"`
	HouseholdID    string    `gorm:"type:varchar(36);not null;index"`
	RequestedBy    string    `gorm:"type:varchar(36);not null"`
	StartAt        time.Time `gorm:"not null;index:idx_reservations_facility_start,priority:2"`
	EndAt          time.Time `gorm:"not null"`
	NumberOfPeople int       `gorm:"not null;default:1"`
	Purpose        string
	Status         string `gorm:"not null;index"`
	AccessCode     string
	ApprovedBy     string
	ApprovedAt     *time.Time
	Notes          string
	CreatedAt      time.Time
	Facility       *facilityRecord  `gorm:"foreignKey:FacilityID"`
	Household      *householdRecord `gorm:"foreignKey:HouseholdID"`
}

func (reservationRecord) TableName() string { return "reservations" }

// Migrate creates or updates the Postgres schema.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&userRecord{},
		&sessionRecord{},
		&facilityRecord{},
		&householdRecord{},
		&householdMemberRecord{},
		&reservationRecord{},
	)
}

func mapGormErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return fmt.Errorf("%w: %v", ErrMissingReference, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	var st interface{ SQLState() string }
	if errors.As(err, &st) {
		switch st.SQLState() {
		case "55P03", "40001", "40P01": // lock_not_available, serialization_failure, deadlock
			return lock.ErrTimeout
		}
		return &DBError{Code: st.SQLState(), Err: err}
	}
	return &DBError{Err: err}
}

// NewPostgresStore wires the gorm repositories. The db should be opened with
// TranslateError so constraint violations map onto the repo sentinels.
func NewPostgresStore(db *gorm.DB, lockWait time.Duration) *Store {
	return &Store{
		Users:        userRepoGorm{db},
		Sessions:     sessionRepoGorm{db},
		Facilities:   facilityRepoGorm{db},
		Households:   householdRepoGorm{db},
		Reservations: &reservationRepoGorm{db: db, lockWait: lockWait},
		Ping: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		Close: func(context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	}
}

type userRepoGorm struct{ db *gorm.DB }

func (r userRepoGorm) Create(ctx context.Context, email, name string, passwordHash []byte) (string, error) {
	rec := userRecord{ID: uuid.NewString(), Email: strings.ToLower(email), Name: name, PasswordHash: passwordHash}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return "", mapGormErr(err)
	}
	return rec.ID, nil
}

func (r userRepoGorm) GetByEmail(ctx context.Context, email string) (*UserRow, error) {
	var rec userRecord
	if err := r.db.WithContext(ctx).Where("email = ?", strings.ToLower(email)).First(&rec).Error; err != nil {
		return nil, mapGormErr(err)
	}
	return &UserRow{
		User:         models.User{ID: rec.ID, Email: rec.Email, Name: rec.Name, IsAdmin: rec.IsAdmin},
		PasswordHash: rec.PasswordHash,
	}, nil
}

func (r userRepoGorm) GetByID(ctx context.Context, id string) (*models.User, error) {
	var rec userRecord
	if err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return nil, mapGormErr(err)
	}
	return &models.User{ID: rec.ID, Email: rec.Email, Name: rec.Name, IsAdmin: rec.IsAdmin}, nil
}

func (r userRepoGorm) UpsertAdmin(ctx context.Context, email string, passwordHash []byte) error {
	rec := userRecord{ID: uuid.NewString(), Email: strings.ToLower(strings.TrimSpace(email)), PasswordHash: passwordHash, IsAdmin: true}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{"password_hash", "is_admin"}),
	}).Create(&rec).Error
	return mapGormErr(err)
}

type sessionRepoGorm struct{ db *gorm.DB }

func (r sessionRepoGorm) Create(ctx context.Context, token, userID string, expires time.Time) error {
	return mapGormErr(r.db.WithContext(ctx).Create(&sessionRecord{Token: token, UserID: userID, ExpiresAt: expires.UTC()}).Error)
}

func (r sessionRepoGorm) Delete(ctx context.Context, token string) error {
	return mapGormErr(r.db.WithContext(ctx).Delete(&sessionRecord{}, "token = ?", token).Error)
}

func (r sessionRepoGorm) Lookup(ctx context.Context, token string) (string, time.Time, error) {
	var rec sessionRecord
	if err := r.db.WithContext(ctx).First(&rec, "token = ?", token).Error; err != nil {
		return "", time.Time{}, mapGormErr(err)
	}
	return rec.UserID, rec.ExpiresAt, nil
}

type facilityRepoGorm struct{ db *gorm.DB }

func (rec facilityRecord) model() (models.Facility, error) {
	f := models.Facility{ID: rec.ID, BuildingID: rec.BuildingID, Name: rec.Name, Capacity: rec.Capacity, CreatedAt: rec.CreatedAt}
	if len(rec.OperatingHours) > 0 {
		if err := json.Unmarshal(rec.OperatingHours, &f.OperatingHours); err != nil {
			return f, fmt.Errorf("decode operating hours of %s: %w", rec.ID, err)
		}
	}
	return f, nil
}

func (r facilityRepoGorm) Create(ctx context.Context, f *models.Facility) (string, error) {
	hours, err := json.Marshal(f.OperatingHours)
	if err != nil {
		return "", err
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	rec := facilityRecord{ID: f.ID, BuildingID: f.BuildingID, Name: f.Name, Capacity: f.Capacity, OperatingHours: datatypes.JSON(hours), CreatedAt: f.CreatedAt}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return "", mapGormErr(err)
	}
	return f.ID, nil
}

func (r facilityRepoGorm) Get(ctx context.Context, id string) (*models.Facility, error) {
	var rec facilityRecord
	if err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return nil, mapGormErr(err)
	}
	f, err := rec.model()
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r facilityRepoGorm) List(ctx context.Context, buildingID string) ([]models.Facility, error) {
	q := r.db.WithContext(ctx).Order("name")
	if buildingID != "" {
		q = q.Where("building_id = ?", buildingID)
	}
	var recs []facilityRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, mapGormErr(err)
	}
	out := make([]models.Facility, 0, len(recs))
	for _, rec := range recs {
		f, err := rec.model()
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func (r facilityRepoGorm) SetOperatingHours(ctx context.Context, id string, hours []models.DayHours) error {
	raw, err := json.Marshal(hours)
	if err != nil {
		return err
	}
	res := r.db.WithContext(ctx).Model(&facilityRecord{}).Where("id = ?", id).Update("operating_hours", datatypes.JSON(raw))
	if res.Error != nil {
		return mapGormErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

type householdRepoGorm struct{ db *gorm.DB }

func (r householdRepoGorm) Create(ctx context.Context, h *models.Household) (string, error) {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&householdRecord{ID: h.ID, BuildingID: h.BuildingID, Name: h.Name, Apartment: h.Apartment}).Error; err != nil {
			return err
		}
		for _, uid := range h.MemberIDs {
			if err := tx.Create(&householdMemberRecord{HouseholdID: h.ID, UserID: uid}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", mapGormErr(err)
	}
	return h.ID, nil
}

func (r householdRepoGorm) members(ctx context.Context, ids []string) (map[string][]string, error) {
	var recs []householdMemberRecord
	if err := r.db.WithContext(ctx).Where("household_id IN ?", ids).Order("user_id").Find(&recs).Error; err != nil {
		return nil, mapGormErr(err)
	}
	out := map[string][]string{}
	for _, m := range recs {
		out[m.HouseholdID] = append(out[m.HouseholdID], m.UserID)
	}
	return out, nil
}

func (r householdRepoGorm) Get(ctx context.Context, id string) (*models.Household, error) {
	many, err := r.GetMany(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	h, ok := many[id]
	if !ok {
		return nil, ErrNotFound
	}
	return h, nil
}

func (r householdRepoGorm) GetMany(ctx context.Context, ids []string) (map[string]*models.Household, error) {
	out := make(map[string]*models.Household, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var recs []householdRecord
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&recs).Error; err != nil {
		return nil, mapGormErr(err)
	}
	members, err := r.members(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		out[rec.ID] = &models.Household{
			ID:         rec.ID,
			BuildingID: rec.BuildingID,
			Name:       rec.Name,
			Apartment:  rec.Apartment,
			MemberIDs:  members[rec.ID],
		}
	}
	return out, nil
}

func (r householdRepoGorm) AddMember(ctx context.Context, householdID, userID string) error {
	var n int64
	if err := r.db.WithContext(ctx).Model(&householdRecord{}).Where("id = ?", householdID).Count(&n).Error; err != nil {
		return mapGormErr(err)
	}
	if n == 0 {
		return ErrNotFound
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&householdMemberRecord{HouseholdID: householdID, UserID: userID}).Error
	return mapGormErr(err)
}

func (r householdRepoGorm) IsMember(ctx context.Context, userID, householdID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&householdMemberRecord{}).
		Where("household_id = ? AND user_id = ?", householdID, userID).Count(&n).Error
	return n > 0, mapGormErr(err)
}

func (r householdRepoGorm) ListMembers(ctx context.Context, householdID string) ([]string, error) {
	h, err := r.Get(ctx, householdID)
	if err != nil {
		return nil, err
	}
	return h.MemberIDs, nil
}

type reservationRepoGorm struct {
	db       *gorm.DB
	lockWait time.Duration
}

func (rec reservationRecord) model() models.Reservation {
	return models.Reservation{
		ID:             rec.ID,
		FacilityID:     rec.FacilityID,
		HouseholdID:    rec.HouseholdID,
		RequestedBy:    rec.RequestedBy,
		StartTime:      rec.StartAt.UTC(),
		EndTime:        rec.EndAt.UTC(),
		NumberOfPeople: rec.NumberOfPeople,
		Purpose:        rec.Purpose,
		Status:         models.ReservationStatus(rec.Status),
		AccessCode:     rec.AccessCode,
		ApprovedBy:     rec.ApprovedBy,
		ApprovedAt:     rec.ApprovedAt,
		Notes:          rec.Notes,
		CreatedAt:      rec.CreatedAt.UTC(),
	}
}

func toModels(recs []reservationRecord) []models.Reservation {
	out := make([]models.Reservation, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.model())
	}
	return out
}

func (r *reservationRepoGorm) active(ctx context.Context, facilityID string) *gorm.DB {
	return r.db.WithContext(ctx).Where("facility_id = ? AND status IN ?", facilityID, activeStatuses())
}

func (r *reservationRepoGorm) FindOverlapping(ctx context.Context, facilityID string, start, end time.Time) ([]models.Reservation, error) {
	var recs []reservationRecord
	err := r.active(ctx, facilityID).
		Where("start_at < ? AND end_at > ?", end.UTC(), start.UTC()).
		Order("start_at").Find(&recs).Error
	if err != nil {
		return nil, mapGormErr(err)
	}
	return toModels(recs), nil
}

func (r *reservationRepoGorm) NextStartingAfter(ctx context.Context, facilityID string, t time.Time) (*models.Reservation, error) {
	var recs []reservationRecord
	err := r.active(ctx, facilityID).Where("start_at > ?", t.UTC()).Order("start_at").Limit(1).Find(&recs).Error
	if err != nil {
		return nil, mapGormErr(err)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	m := recs[0].model()
	return &m, nil
}

func (r *reservationRepoGorm) Get(ctx context.Context, id string) (*models.Reservation, error) {
	var rec reservationRecord
	if err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return nil, mapGormErr(err)
	}
	m := rec.model()
	return &m, nil
}

func (r *reservationRepoGorm) ListActive(ctx context.Context, facilityID string, from, to time.Time) ([]models.Reservation, error) {
	return r.FindOverlapping(ctx, facilityID, from, to)
}

// WithFacilityLock runs fn in a READ COMMITTED transaction holding a
// transaction-scoped advisory lock on the facility id. Every statement after
// the lock takes a fresh snapshot, so fn sees rows committed by the previous
// holder. Do not raise the isolation level: the snapshot would then be taken
// before the lock wait.
func (r *reservationRepoGorm) WithFacilityLock(ctx context.Context, facilityID string, fn func(ctx context.Context, tx ReservationTx) error) error {
	var fnErr error
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if tx.Dialector.Name() == "postgres" {
			if r.lockWait > 0 {
				if err := tx.Exec(fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockWait.Milliseconds())).Error; err != nil {
					return err
				}
			}
			if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", facilityID).Error; err != nil {
				return err
			}
		}
		fnErr = fn(ctx, reservationTxGorm{&reservationRepoGorm{db: tx}})
		return fnErr
	}, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if fnErr != nil {
		return fnErr
	}
	return mapGormErr(err)
}

type reservationTxGorm struct{ *reservationRepoGorm }

func (tx reservationTxGorm) Insert(ctx context.Context, res *models.Reservation) error {
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}
	rec := reservationRecord{
		ID:             res.ID,
		FacilityID:     res.FacilityID,
		HouseholdID:    res.HouseholdID,
		RequestedBy:    res.RequestedBy,
		StartAt:        res.StartTime.UTC(),
		EndAt:          res.EndTime.UTC(),
		NumberOfPeople: res.People(),
		Purpose:        res.Purpose,
		Status:         string(res.Status),
		AccessCode:     res.AccessCode,
		ApprovedBy:     res.ApprovedBy,
		ApprovedAt:     res.ApprovedAt,
		Notes:          res.Notes,
		CreatedAt:      res.CreatedAt,
	}
	return mapGormErr(tx.db.WithContext(ctx).Create(&rec).Error)
}
