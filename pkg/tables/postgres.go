package tables

import (
	"context"
	"fmt"
	"time"

	"github.com/synaptica-ai/registercohort/pkg/common/models"
	"github.com/synaptica-ai/registercohort/pkg/relation"
	"gorm.io/gorm"
)

type DiagnosisModel struct {
	PersonID      string    `gorm:"column:person_id;index"`
	DiagnosisCode string    `gorm:"column:diagnosis_code;index"`
	DiagnosisDate time.Time `gorm:"column:diagnosis_date;type:date"`
}

func (DiagnosisModel) TableName() string {
	return "register_diagnoses"
}

type ChildModel struct {
	ChildID   string     `gorm:"column:child_id;index"`
	FamilyID  *string    `gorm:"column:family_id"`
	BirthDate *time.Time `gorm:"column:birth_date;type:date"`
}

func (ChildModel) TableName() string {
	return "register_children"
}

type PersonModel struct {
	PersonID string  `gorm:"column:person_id;index"`
	MotherID *string `gorm:"column:mother_id"`
	FatherID *string `gorm:"column:father_id"`
}

func (PersonModel) TableName() string {
	return "register_persons"
}

type IncomeModel struct {
	PersonID    string  `gorm:"column:person_id;index"`
	Year        int     `gorm:"column:year"`
	TotalIncome float64 `gorm:"column:total_income"`
}

func (IncomeModel) TableName() string {
	return "register_incomes"
}

// PostgresSource streams register tables loaded into Postgres. The column
// set comes from the live table, so a table created without birth_date is
// reported as such.
type PostgresSource struct {
	db *gorm.DB
}

func NewPostgresSource(db *gorm.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

func (s *PostgresSource) AutoMigrate() error {
	return s.db.AutoMigrate(&DiagnosisModel{}, &ChildModel{}, &PersonModel{}, &IncomeModel{})
}

func (s *PostgresSource) Diagnosis(ctx context.Context) (relation.Relation[models.DiagnosisRecord], error) {
	return streamTable(ctx, s.db, Diagnosis, DiagnosisModel{}.TableName(),
		[]string{ColPersonID, ColDiagnosisDate, ColDiagnosisCode},
		func(m DiagnosisModel) models.DiagnosisRecord {
			return models.DiagnosisRecord{
				PersonID:      m.PersonID,
				DiagnosisCode: m.DiagnosisCode,
				DiagnosisDate: models.Date(m.DiagnosisDate),
			}
		})
}

func (s *PostgresSource) Child(ctx context.Context) (relation.Relation[models.ChildRecord], error) {
	return streamTable(ctx, s.db, Child, ChildModel{}.TableName(), []string{ColChildID},
		func(m ChildModel) models.ChildRecord {
			rec := models.ChildRecord{ChildID: m.ChildID, FamilyID: m.FamilyID}
			if m.BirthDate != nil {
				rec.BirthDate = models.TimePtr(models.Date(*m.BirthDate))
			}
			return rec
		})
}

func (s *PostgresSource) Person(ctx context.Context) (relation.Relation[models.PersonRecord], error) {
	return streamTable(ctx, s.db, Person, PersonModel{}.TableName(), []string{ColPersonID},
		func(m PersonModel) models.PersonRecord {
			return models.PersonRecord{PersonID: m.PersonID, MotherID: m.MotherID, FatherID: m.FatherID}
		})
}

func (s *PostgresSource) Income(ctx context.Context) (relation.Relation[models.IncomeRecord], error) {
	return streamTable(ctx, s.db, Income, IncomeModel{}.TableName(), []string{ColPersonID, ColYear},
		func(m IncomeModel) models.IncomeRecord {
			return models.IncomeRecord{PersonID: m.PersonID, Year: m.Year, TotalIncome: m.TotalIncome}
		})
}

func streamTable[M, T any](ctx context.Context, db *gorm.DB, name, tableName string, orderBy []string, convert func(M) T) (relation.Relation[T], error) {
	migrator := db.WithContext(ctx).Migrator()
	if !migrator.HasTable(tableName) {
		return relation.Relation[T]{}, &relation.MissingTableError{Table: name}
	}
	columnTypes, err := migrator.ColumnTypes(tableName)
	if err != nil {
		return relation.Relation[T]{}, fmt.Errorf("inspect %s: %w", tableName, err)
	}
	columns := relation.Columns{}
	selected := make([]string, 0, len(columnTypes))
	for _, ct := range columnTypes {
		columns[ct.Name()] = struct{}{}
		selected = append(selected, ct.Name())
	}

	return relation.New(name, columns, func(yield func(T) bool) error {
		query := db.WithContext(ctx).Table(tableName).Select(selected)
		for _, col := range orderBy {
			if columns.Has(col) {
				query = query.Order(col)
			}
		}
		rows, err := query.Rows()
		if err != nil {
			return fmt.Errorf("query %s: %w", tableName, err)
		}
		defer rows.Close()

		for rows.Next() {
			var model M
			if err := db.ScanRows(rows, &model); err != nil {
				return fmt.Errorf("scan %s: %w", tableName, err)
			}
			if !yield(convert(model)) {
				return nil
			}
		}
		return rows.Err()
	}), nil
}
