package platform

// NewHost returns the capabilities of the running operating system.
func NewHost() *Host {
	runner := ExecRunner{}
	return &Host{
		Processes: newProcessDirectory(runner),
		Services:  newServiceControl(),
		Files:     OSFilesystem{},
		Keys:      newKeyStore(),
		Runner:    runner,
		ForceKill: forceKillCommand,
	}
}
