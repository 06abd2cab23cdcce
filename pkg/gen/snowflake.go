package gen

import (
	"hash/fnv"
	"os"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

var Module = fx.Module("snowflake",
	fx.Provide(NewNode),
)

// NewNode derives the snowflake node id from the hostname so horizontally
// scaled replicas do not mint colliding ids.
func NewNode() (*snowflake.Node, error) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "licensegate"
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(hostname))

	return snowflake.NewNode(int64(h.Sum32() % 1024))
}
