/*
Package policy answers the permission questions the resumption controller
asks the policy service: may an application run, which HMI level does it get
when it registers, and which HMI levels may it be restored to.

The table is a YAML document. Application rules are matched against the
policy app id with doublestar glob patterns; the first matching rule wins and
unset fields fall back to the default rule.

	default:
	  allowed: true
	  default_hmi_level: NONE
	apps:
	  - pattern: "nav.*"
	    allowed_hmi_levels: [FULL, LIMITED, BACKGROUND, NONE]
	  - pattern: "blocked.*"
	    allowed: false
*/
package policy
