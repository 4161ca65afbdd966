/*
Package irqlat produces the electrical events needed to measure irq latency and
gpio toggle speed with an oscilloscope.

The latency test requires the test pin to be jumpered to the irq pin. The test
attaches a rising edge handler to the irq pin and sets the test pin high. The
handler sets the test pin low again. The width of the pulse on the test pin is
the irq latency plus the time it takes to set a gpio pin.

The toggle test sets and clears the test pin in a tight loop. The period of the
resulting burst is the time needed for two pin writes.

Nothing is timed in software: the oscilloscope does the measurement. Only one
test runs at a time, concurrent callers queue at the device gate.

Commands use the character device protocol: a write starting with
'1' runs the latency test, any other write runs the toggle test and an empty
write does nothing.

	echo 1 > /run/irqlat/ctl   # latency test
	echo 0 > /run/irqlat/ctl   # toggle test
*/
package irqlat
