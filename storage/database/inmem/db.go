package inmemdb

import (
	"sync"

	"github.com/trezcool/feeded/core/program"
	"github.com/trezcool/feeded/core/survey"
	"github.com/trezcool/feeded/core/user"
)

// DB is a process-local store. One lock guards every table so that multi-table
// writes (student + program counters) stay atomic.
type DB struct {
	mutex    sync.RWMutex
	users    map[string]*user.User
	programs map[string]*program.Program
	students map[string]*program.Student // by student id
	forms    map[string]*survey.FormAnswer
}

func Open() *DB {
	return &DB{
		users:    make(map[string]*user.User),
		programs: make(map[string]*program.Program),
		students: make(map[string]*program.Student),
		forms:    make(map[string]*survey.FormAnswer),
	}
}
