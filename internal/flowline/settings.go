package flowline

// SettingDefault is the sentinel meaning "no override; inherit the global
// default". It must never be persisted; normalization strips it.
const SettingDefault = "DEFAULT"

// Settings keys that participate in sentinel stripping.
const (
	SettingTimezone         = "timezone"
	SettingSaveDataError    = "saveDataErrorExecution"
	SettingSaveDataSuccess  = "saveDataSuccessExecution"
	SettingSaveManualExecs  = "saveManualExecutions"
	SettingExecutionTimeout = "executionTimeout"
)

// ActivationMode hints the runtime why triggers are being registered.
type ActivationMode string

const (
	// ModeActivate marks a transition from inactive to active.
	ModeActivate ActivationMode = "activate"
	// ModeUpdate marks re-registration of an already-active workflow.
	ModeUpdate ActivationMode = "update"
	// ModeInit marks registration during process startup.
	ModeInit ActivationMode = "init"
)
