package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/feeded/core/program"
	"github.com/trezcool/feeded/core/survey"
)

type programRepository struct {
	db *DB
}

func NewProgramRepository(db *DB) program.Repository {
	return &programRepository{db: db}
}

func (repo *programRepository) CreateProgram(_ context.Context, p program.Program) (program.Program, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.programs[p.ID] = &p
	return p, nil
}

func (repo *programRepository) GetProgram(_ context.Context, id string) (program.Program, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if p, ok := repo.db.programs[id]; ok {
		return *p, nil
	}
	return program.Program{}, program.ErrNotFound
}

func (repo *programRepository) QueryPrograms(_ context.Context, uid string) ([]program.Program, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	progs := make([]program.Program, 0)
	for _, p := range repo.db.programs {
		if uid == "" || p.UserID == uid {
			progs = append(progs, *p)
		}
	}
	sort.Slice(progs, func(i, j int) bool {
		if !progs[i].CreatedAt.Equal(progs[j].CreatedAt) {
			return progs[i].CreatedAt.Before(progs[j].CreatedAt)
		}
		return progs[i].ID < progs[j].ID
	})
	return progs, nil
}

func (repo *programRepository) DeleteProgram(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.programs[id]; !ok {
		return program.ErrNotFound
	}
	delete(repo.db.programs, id)
	for sid, st := range repo.db.students {
		if st.ProgramID == id {
			delete(repo.db.students, sid)
		}
	}
	return nil
}

func (repo *programRepository) CreateStudent(_ context.Context, st program.Student) (program.Student, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	p, ok := repo.db.programs[st.ProgramID]
	if !ok {
		return program.Student{}, program.ErrNotFound
	}
	repo.db.students[st.ID] = &st
	p.StudentCount++
	return st, nil
}

// student must be called with the lock held.
func (repo *programRepository) student(pid, sid string) (*program.Student, error) {
	st, ok := repo.db.students[sid]
	if !ok || st.ProgramID != pid {
		return nil, program.ErrStudentNotFound
	}
	return st, nil
}

func (repo *programRepository) GetStudent(_ context.Context, pid, sid string) (program.Student, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	st, err := repo.student(pid, sid)
	if err != nil {
		return program.Student{}, err
	}
	return *st, nil
}

func (repo *programRepository) QueryStudents(_ context.Context, pid string) ([]program.Student, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	students := make([]program.Student, 0)
	for _, st := range repo.db.students {
		if st.ProgramID == pid {
			students = append(students, *st)
		}
	}
	sort.Slice(students, func(i, j int) bool {
		if !students[i].CreatedAt.Equal(students[j].CreatedAt) {
			return students[i].CreatedAt.Before(students[j].CreatedAt)
		}
		return students[i].ID < students[j].ID
	})
	return students, nil
}

func (repo *programRepository) DeleteStudent(_ context.Context, pid, sid string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, err := repo.student(pid, sid); err != nil {
		return err
	}
	delete(repo.db.students, sid)
	if p, ok := repo.db.programs[pid]; ok && p.StudentCount > 0 {
		p.StudentCount--
	}
	return nil
}

func (repo *programRepository) IncrementCounter(_ context.Context, pid string, t survey.FormType, counter program.Counter) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	p, ok := repo.db.programs[pid]
	if !ok {
		return program.ErrNotFound
	}
	p.IncCounter(t, counter)
	return nil
}

func (repo *programRepository) ClaimEmail(_ context.Context, key program.EmailKey, now time.Time, lease time.Duration) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	st, err := repo.student(key.ProgramID, key.StudentID)
	if err != nil {
		return err
	}
	if key.Sent(*st) {
		return program.ErrAlreadySent
	}
	es := st.SurveyPtr(key.FormType)
	if !es.Claimable(now, lease) {
		return program.ErrDispatchInProgress
	}
	es.ClaimedAt = now
	return nil
}

func (repo *programRepository) ReleaseEmail(_ context.Context, key program.EmailKey) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	st, err := repo.student(key.ProgramID, key.StudentID)
	if err != nil {
		return err
	}
	st.SurveyPtr(key.FormType).ClaimedAt = time.Time{}
	return nil
}

func (repo *programRepository) MarkEmailSent(_ context.Context, key program.EmailKey, at time.Time) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	st, err := repo.student(key.ProgramID, key.StudentID)
	if err != nil {
		return err
	}
	if key.Sent(*st) {
		return program.ErrAlreadySent
	}
	key.MarkSent(st, at)
	if p, ok := repo.db.programs[key.ProgramID]; ok {
		p.IncCounter(key.FormType, key.Counter())
	}
	return nil
}
