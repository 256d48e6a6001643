package enums

// BlockCategory is the type of a node in a course content tree. The set is
// open (XBlock plugins add categories); the constants cover the built-ins the
// access core cares about.
type BlockCategory string

const (
	BlockCourse     BlockCategory = "course"
	BlockChapter    BlockCategory = "chapter"
	BlockSequential BlockCategory = "sequential"
	BlockVertical   BlockCategory = "vertical"
	BlockProblem    BlockCategory = "problem"
	BlockHTML       BlockCategory = "html"
	BlockVideo      BlockCategory = "video"
	BlockDiscussion BlockCategory = "discussion"
)

var containerCategories = map[BlockCategory]bool{
	BlockCourse:     true,
	BlockChapter:    true,
	BlockSequential: true,
	BlockVertical:   true,
}

// String implements fmt.Stringer.
func (c BlockCategory) String() string {
	return string(c)
}

// IsContainer reports whether the category holds ordered children.
func (c BlockCategory) IsContainer() bool {
	return containerCategories[c]
}
