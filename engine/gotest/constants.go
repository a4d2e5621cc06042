package gotest

// Name is the name the engine registers under.
const Name = "gotest"

const (
	// Default go binary name
	DefaultGoBinary = "go"

	// GoBinaryEnv overrides the go binary used to build and run specs
	GoBinaryEnv = "OP_SPECRUNNER_GO_BINARY"

	// Test command arguments
	TestCommand  = "test"
	BuildCommand = "build"
	VetCommand   = "vet"
	JSONFlag     = "-json"
	VerboseFlag  = "-v"
	TimeoutFlag  = "-timeout"
	CountFlag    = "-count"
	RunFlag      = "-run"
	FailFastFlag = "-failfast"
	ShortFlag    = "-short"
	RaceFlag     = "-race"
	TagsFlag     = "-tags"

	// Test count to disable caching
	DisableCacheCount = "1"

	CurrentDirPattern = "."

	defaultStderrTailBytes = 64 * 1024
	maxEventLineBytes      = 16 << 20
)

// test2json actions
const (
	ActionStart       = "start"
	ActionRun         = "run"
	ActionPause       = "pause"
	ActionCont        = "cont"
	ActionPass        = "pass"
	ActionFail        = "fail"
	ActionSkip        = "skip"
	ActionOutput      = "output"
	ActionBuildOutput = "build-output"
	ActionBuildFail   = "build-fail"
)
