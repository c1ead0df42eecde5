package artifact

// Phase2Kinds is the ordered list of artifact kinds every phase-2
// contribution must carry. Verification walks kinds in this order.
var Phase2Kinds = []string{
	"inclusion_26_1",
	"inclusion_26_2",
	"inclusion_26_3",
	"inclusion_26_4",
	"inclusion_26_8",
	"non-inclusion_26_1",
	"non-inclusion_26_2",
	"non-inclusion_26_3",
	"non-inclusion_26_4",
	"non-inclusion_26_8",
	"combined_26_1_1",
	"combined_26_1_2",
	"combined_26_1_4",
	"combined_26_1_8",
	"combined_26_2_1",
	"combined_26_2_2",
	"combined_26_2_4",
	"combined_26_2_8",
	"combined_26_3_1",
	"combined_26_3_2",
	"combined_26_3_4",
	"combined_26_3_8",
	"combined_26_4_1",
	"combined_26_4_2",
	"combined_26_4_4",
	"combined_26_4_8",
	"combined_26_8_1",
	"combined_26_8_2",
	"combined_26_8_4",
	"combined_26_8_8",
}

// DefaultKinds returns a copy of Phase2Kinds.
func DefaultKinds() []string {
	out := make([]string, len(Phase2Kinds))
	copy(out, Phase2Kinds)
	return out
}
