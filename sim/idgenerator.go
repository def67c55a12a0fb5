package sim

import (
	"log"
	"strconv"
	"sync"

	"github.com/rs/xid"
)

// IDGenerator hands out identifiers for workers, progress bars and other
// objects that need one. Each id starts with the kind of the object, such as
// "worker-3".
type IDGenerator interface {
	Generate(kind string) string
}

var (
	idGeneratorMutex sync.Mutex
	idGeneratorInUse bool
	idGenerator      IDGenerator = newSequentialIDGenerator()
)

// UseSequentialIDGenerator numbers the ids of each kind from 1. Runs that
// create objects in the same order get the same ids.
func UseSequentialIDGenerator() {
	setIDGenerator(newSequentialIDGenerator())
}

// UseParallelIDGenerator makes ids globally unique xids. The ids differ from
// run to run.
func UseParallelIDGenerator() {
	setIDGenerator(xidGenerator{})
}

func setIDGenerator(g IDGenerator) {
	idGeneratorMutex.Lock()
	defer idGeneratorMutex.Unlock()

	if idGeneratorInUse {
		log.Panic("cannot change id generator type after using it")
	}

	idGenerator = g
}

// GetIDGenerator returns the generator in use. The choice is locked after the
// first call.
func GetIDGenerator() IDGenerator {
	idGeneratorMutex.Lock()
	defer idGeneratorMutex.Unlock()

	idGeneratorInUse = true

	return idGenerator
}

type sequentialIDGenerator struct {
	lock     sync.Mutex
	counters map[string]uint64
}

func newSequentialIDGenerator() *sequentialIDGenerator {
	return &sequentialIDGenerator{counters: make(map[string]uint64)}
}

func (g *sequentialIDGenerator) Generate(kind string) string {
	g.lock.Lock()
	defer g.lock.Unlock()

	g.counters[kind]++

	return kind + "-" + strconv.FormatUint(g.counters[kind], 10)
}

type xidGenerator struct{}

func (xidGenerator) Generate(kind string) string {
	return kind + "-" + xid.New().String()
}
