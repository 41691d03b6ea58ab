package launch

// launcherSpec describes one recognized launcher: its binary name and
// which of its flags consume a following value argument (so argument
// splitting doesn't mistake a flag's value for the start of the program).
type launcherSpec struct {
	name          string
	valueOptions  map[string]bool
}

// knownLaunchers is the static table of recognized MPI/job launchers and
// their option grammars, per spec §4.7 step 1.
var knownLaunchers = []launcherSpec{
	{name: "mpirun", valueOptions: commonMPIOptions()},
	{name: "mpiexec", valueOptions: commonMPIOptions()},
	{name: "orterun", valueOptions: commonMPIOptions()},
	{name: "srun", valueOptions: map[string]bool{
		"-n": true, "--ntasks": true, "-N": true, "--nodes": true,
		"-p": true, "--partition": true, "-t": true, "--time": true,
		"-A": true, "--account": true, "-J": true, "--job-name": true,
		"-c": true, "--cpus-per-task": true, "-o": true, "--output": true,
	}},
	{name: "jsrun", valueOptions: map[string]bool{
		"-n": true, "--nrs": true, "-a": true, "--tasks_per_rs": true,
		"-c": true, "--cpu_per_rs": true, "-g": true, "--gpu_per_rs": true,
	}},
	{name: "prun", valueOptions: map[string]bool{
		"-n": true, "-N": true, "-p": true,
	}},
	{name: "aprun", valueOptions: map[string]bool{
		"-n": true, "-N": true, "-d": true, "-cc": true,
	}},
}

func commonMPIOptions() map[string]bool {
	return map[string]bool{
		"-n": true, "-np": true, "-c": true, "--npernode": true,
		"-npernode": true, "-host": true, "--host": true,
		"-hostfile": true, "--hostfile": true, "-x": true,
		"--map-by": true, "-mca": true, "--mca": true,
		"-wdir": true, "--wdir": true,
	}
}

// Split partitions a command line into the launcher invocation and the
// program invocation: (launcher+its args, program+its args). If the first
// token isn't a recognized launcher, the whole argv is treated as the
// program with an empty launcher, per spec §4.7 step 1.
func Split(argv []string) (launcherArgv, programArgv []string) {
	if len(argv) == 0 {
		return nil, nil
	}

	spec, ok := lookup(argv[0])
	if !ok {
		return nil, argv
	}

	i := 1
	for i < len(argv) {
		tok := argv[i]
		if tok == "--" {
			i++
			break
		}
		if !looksLikeOption(tok) {
			break
		}
		launcherArgv = append(launcherArgv, tok)
		i++
		if spec.valueOptions[tok] && i < len(argv) {
			launcherArgv = append(launcherArgv, argv[i])
			i++
		}
	}
	launcherArgv = append([]string{argv[0]}, launcherArgv...)

	if i < len(argv) {
		programArgv = argv[i:]
	}
	return launcherArgv, programArgv
}

func looksLikeOption(tok string) bool {
	return len(tok) > 0 && tok[0] == '-'
}

func lookup(name string) (launcherSpec, bool) {
	for _, spec := range knownLaunchers {
		if spec.name == name {
			return spec, true
		}
	}
	return launcherSpec{}, false
}
