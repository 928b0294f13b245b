package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/termwatch/termwatch/channel"
)

type AccountRow struct {
	gorm.Model
	AccountID string `gorm:"uniqueIndex"`
	Phone     string
	UserID    string
	Username  string
	FirstName string
	LastName  string
	AddedAt   time.Time
}

type ChannelRow struct {
	gorm.Model
	Ref string `gorm:"uniqueIndex"`
}

type TermRow struct {
	gorm.Model
	Term string `gorm:"uniqueIndex"`
}

type SettingRow struct {
	gorm.Model
	Name  string `gorm:"uniqueIndex"`
	Value string
}

type StatRow struct {
	gorm.Model
	Channel string `gorm:"index;uniqueIndex:idx_stats_channel_term"`
	Term    string `gorm:"uniqueIndex:idx_stats_channel_term"`
	Count   int64
}

const settingMode = "mode"

// GormStore is the database-backed implementation of the Store interface.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB, defaultMode Mode) (*GormStore, error) {
	if err := db.AutoMigrate(&AccountRow{}, &ChannelRow{}, &TermRow{}, &SettingRow{}, &StatRow{}); err != nil {
		return nil, fmt.Errorf("migrating config store: %w", err)
	}
	s := &GormStore{db: db}

	// seed the mode setting on first boot
	var row SettingRow
	err := db.First(&row, "name = ?", settingMode).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if defaultMode == "" {
			defaultMode = ModeTest
		}
		if err := db.Create(&SettingRow{Name: settingMode, Value: string(defaultMode)}).Error; err != nil {
			return nil, fmt.Errorf("seeding mode setting: %w", err)
		}
	} else if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *GormStore) Read(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{
		Mode:  ModeTest,
		Stats: make(map[string]map[string]int64),
	}

	var accounts []AccountRow
	if err := s.db.WithContext(ctx).Order("id").Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("reading accounts: %w", err)
	}
	for _, row := range accounts {
		snap.Accounts = append(snap.Accounts, Account{
			ID:        row.AccountID,
			Phone:     row.Phone,
			UserID:    row.UserID,
			Username:  row.Username,
			FirstName: row.FirstName,
			LastName:  row.LastName,
			AddedAt:   row.AddedAt,
		})
	}

	var channels []ChannelRow
	if err := s.db.WithContext(ctx).Order("id").Find(&channels).Error; err != nil {
		return nil, fmt.Errorf("reading channels: %w", err)
	}
	for _, row := range channels {
		snap.Channels = append(snap.Channels, channel.Ref(row.Ref))
	}

	var terms []TermRow
	if err := s.db.WithContext(ctx).Order("id").Find(&terms).Error; err != nil {
		return nil, fmt.Errorf("reading terms: %w", err)
	}
	for _, row := range terms {
		snap.Terms = append(snap.Terms, row.Term)
	}

	var mode SettingRow
	err := s.db.WithContext(ctx).First(&mode, "name = ?", settingMode).Error
	if err == nil {
		snap.Mode = Mode(mode.Value)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("reading mode: %w", err)
	}

	var stats []StatRow
	if err := s.db.WithContext(ctx).Find(&stats).Error; err != nil {
		return nil, fmt.Errorf("reading stats: %w", err)
	}
	for _, row := range stats {
		m, ok := snap.Stats[row.Channel]
		if !ok {
			m = make(map[string]int64)
			snap.Stats[row.Channel] = m
		}
		m[row.Term] = row.Count
	}

	return snap, nil
}

func (s *GormStore) AddAccount(ctx context.Context, acct Account) error {
	if acct.ID == "" {
		return fmt.Errorf("empty account ID")
	}
	row := AccountRow{
		AccountID: acct.ID,
		Phone:     acct.Phone,
		UserID:    acct.UserID,
		Username:  acct.Username,
		FirstName: acct.FirstName,
		LastName:  acct.LastName,
		AddedAt:   acct.AddedAt,
	}
	err := s.db.WithContext(ctx).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil
	}
	return err
}

func (s *GormStore) RemoveAccount(ctx context.Context, accountID string) error {
	return s.db.WithContext(ctx).Unscoped().Delete(&AccountRow{}, "account_id = ?", accountID).Error
}

func (s *GormStore) AddChannel(ctx context.Context, ref channel.Ref) error {
	err := s.db.WithContext(ctx).Create(&ChannelRow{Ref: ref.String()}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil
	}
	return err
}

func (s *GormStore) RemoveChannel(ctx context.Context, ref channel.Ref) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Delete(&ChannelRow{}, "ref = ?", ref.String()).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(&StatRow{}, "channel = ?", ref.String()).Error
	})
}

func (s *GormStore) AddTerms(ctx context.Context, terms []string) error {
	rows := make([]TermRow, 0, len(terms))
	seen := make(map[string]bool, len(terms))
	for _, term := range terms {
		term = NormalizeTerm(term)
		if term == "" || seen[term] {
			continue
		}
		seen[term] = true
		rows = append(rows, TermRow{Term: term})
	}
	if len(rows) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
}

func (s *GormStore) RemoveTerms(ctx context.Context, terms []string) error {
	if len(terms) == 0 {
		return nil
	}
	// stored terms are canonical, so removal matches any entry casing
	canonical := make([]string, 0, len(terms))
	for _, term := range terms {
		canonical = append(canonical, NormalizeTerm(term))
	}
	return s.db.WithContext(ctx).Unscoped().Delete(&TermRow{}, "term IN ?", canonical).Error
}

func (s *GormStore) SetMode(ctx context.Context, mode Mode) error {
	if _, err := ParseMode(string(mode)); err != nil {
		return err
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&SettingRow{Name: settingMode, Value: string(mode)}).Error
}

func (s *GormStore) IncrementStat(ctx context.Context, channelKey, term string) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "channel"}, {Name: "term"}},
			DoUpdates: clause.Assignments(map[string]any{"count": gorm.Expr("count + 1"), "updated_at": time.Now()}),
		}).
		Create(&StatRow{Channel: channelKey, Term: term, Count: 1}).Error
}

func (s *GormStore) ClearStats(ctx context.Context) error {
	return s.db.WithContext(ctx).Unscoped().Where("1 = 1").Delete(&StatRow{}).Error
}

var _ Store = (*GormStore)(nil)
