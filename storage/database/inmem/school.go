package inmemdb

import (
	"context"
	"sort"

	"github.com/databayt/hogwarts-sub013/core"
	"github.com/databayt/hogwarts-sub013/core/school"
)

type schoolRepository struct {
	db *table[school.School]
}

var _ school.Repository = (*schoolRepository)(nil)

func NewSchoolRepository(db *DB) *schoolRepository {
	return &schoolRepository{db: db.school}
}

func (repo *schoolRepository) CodeExists(_ context.Context, code string, _ ...core.DBExecutor) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	for _, sch := range repo.db.rows {
		if sch.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (repo *schoolRepository) CreateSchool(_ context.Context, sch school.School, _ ...core.DBExecutor) (school.School, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	sch.ID = newID()
	repo.db.rows[sch.ID] = &sch
	return sch, nil
}

func (repo *schoolRepository) GetSchool(_ context.Context, filter school.GetFilter, _ ...core.DBExecutor) (school.School, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	for _, sch := range repo.db.rows {
		if (filter.ID != "" && sch.ID == filter.ID) || (filter.Code != "" && sch.Code == filter.Code) {
			return *sch, nil
		}
	}
	return school.School{}, school.ErrNotFound
}

func (repo *schoolRepository) QuerySchools(_ context.Context, filter *school.QueryFilter, _ ...core.DBExecutor) ([]school.School, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	schools := repo.db.all(func(sch school.School) bool {
		if filter == nil {
			return true
		}
		if filter.IsActive != nil && sch.IsActive != *filter.IsActive {
			return false
		}
		return filter.Search == "" || containsFold(sch.Name, filter.Search) || containsFold(sch.Code, filter.Search)
	})
	sort.Slice(schools, func(i, j int) bool { return schools[i].Name < schools[j].Name })
	return schools, nil
}

func (repo *schoolRepository) UpdateSchool(_ context.Context, sch school.School, _ ...core.DBExecutor) (school.School, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	if _, ok := repo.db.rows[sch.ID]; !ok {
		return school.School{}, school.ErrNotFound
	}
	repo.db.rows[sch.ID] = &sch
	return sch, nil
}
