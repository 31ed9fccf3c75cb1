package retrieval

import "hash/fnv"

// tableau10 is the stable palette graph node colors are hashed into by
// type_name.
var tableau10 = [10]string{
	"#4E79A7", "#F28E2B", "#E15759", "#76B7B2", "#59A14F",
	"#EDC948", "#B07AA1", "#FF9DA7", "#9C755F", "#BAB0AC",
}

// ColorFor returns a stable Tableau-10 color for a graph node's type_name.
func ColorFor(typeName string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(typeName))
	return tableau10[h.Sum32()%uint32(len(tableau10))]
}
