package history

import (
	"fmt"
	"math/rand/v2"
	"sync"
)

var adjectives = []string{
	"amber", "arctic", "azure", "bold", "brisk", "calm", "copper", "coral",
	"crimson", "dusky", "ember", "frost", "golden", "indigo", "ivory", "jade",
	"lunar", "misty", "noble", "onyx", "quiet", "rapid", "ruby", "silver",
	"solar", "steady", "swift", "tidal", "umber", "velvet", "violet", "wild",
}

var animals = []string{
	"badger", "bison", "condor", "crane", "falcon", "ferret", "gecko", "heron",
	"ibis", "jackal", "kestrel", "lemur", "lynx", "marten", "newt", "ocelot",
	"osprey", "otter", "panda", "puffin", "quail", "raven", "seal", "stoat",
	"swift", "tapir", "tern", "viper", "walrus", "wombat", "yak", "zebu",
}

// NameGenerator produces "adjective-animal-NN" names for anonymous users.
// It is safe for concurrent use.
type NameGenerator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewNameGenerator creates a randomly seeded generator.
func NewNameGenerator() *NameGenerator {
	return &NameGenerator{rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

// NewSeededNameGenerator creates a deterministic generator.
func NewSeededNameGenerator(seed uint64) *NameGenerator {
	return &NameGenerator{rng: rand.New(rand.NewPCG(seed, seed))}
}

// Generate returns the next name.
func (g *NameGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	adj := adjectives[g.rng.IntN(len(adjectives))]
	animal := animals[g.rng.IntN(len(animals))]
	return fmt.Sprintf("%s-%s-%02d", adj, animal, g.rng.IntN(100))
}
